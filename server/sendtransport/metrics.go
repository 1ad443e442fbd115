package sendtransport

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	closeReasonLocal     = "local"
	closeReasonTransport = "transport"
)

var prometheusProducersActive = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "producers_active",
	Help: "Number of open producers",
})

var prometheusProducersTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "producers_total",
	Help: "Total number of created producers",
})

var prometheusProducersClosedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "producers_closed_total",
	Help: "Total number of closed producers by reason",
}, []string{"reason"})

var prometheusTrackReplacementsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "producer_track_replacements_total",
	Help: "Total number of sender track replacements, including pause and resume",
})

var prometheusRTCPPacketsReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "producer_rtcp_packets_received_total",
	Help: "Total number of RTCP packets received by senders, by packet type",
}, []string{"type"})
