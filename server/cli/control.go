package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/peer-calls/mediaproducer/server/identifiers"
	"github.com/peer-calls/mediaproducer/server/logger"
	"github.com/peer-calls/mediaproducer/server/producer"
	"github.com/peer-calls/mediaproducer/server/signaling"
	"github.com/peer-calls/mediaproducer/server/transport"
)

const controlUsage = `Commands:
  pause <kind>        pause the audio or video producer
  resume <kind>       resume the producer
  layer <kind> <n>    set the max spatial layer of the video producer
  stats <kind>        print sender statistics
  close <kind>        close the producer
`

// remote mirrors local producer changes to the server.
type remote interface {
	PauseProducer(ctx context.Context, producerID identifiers.ProducerID) error
	ResumeProducer(ctx context.Context, producerID identifiers.ProducerID) error
	CloseProducer(ctx context.Context, producerID identifiers.ProducerID) error
}

// controller applies control commands and server notifications to the
// published producers. It is not safe for concurrent use; run handles
// all events from a single goroutine.
type controller struct {
	log       logger.Logger
	remote    remote
	out       io.Writer
	timeout   time.Duration
	producers map[transport.TrackKind]*producer.Producer
}

func newController(log logger.Logger, remote remote, out io.Writer) *controller {
	return &controller{
		log:       log.WithNamespaceAppended("control"),
		remote:    remote,
		out:       out,
		timeout:   10 * time.Second,
		producers: map[transport.TrackKind]*producer.Producer{},
	}
}

func (c *controller) add(p *producer.Producer) {
	c.producers[p.Kind()] = p
}

// readLines sends lines read from r until EOF or until ctx is done. It
// returns a nil channel for a nil reader. A blocked read only notices ctx
// once it returns.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	if r == nil {
		return nil
	}

	lines := make(chan string)

	go func() {
		defer close(lines)

		scanner := bufio.NewScanner(r)

		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	return lines
}

// run returns nil when ctx is done or all producers were closed, and
// signaling.ErrClosed when the server connection closes first.
func (c *controller) run(ctx context.Context, lines <-chan string, notifications <-chan signaling.Message) error {
	for len(c.producers) > 0 {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				c.log.Debug("Control input closed", nil)

				lines = nil

				continue
			}

			if err := c.handleLine(ctx, line); err != nil {
				c.log.Error("Handle command", errors.Trace(err), logger.Ctx{
					"command": line,
				})

				c.printf("error: %s\n", err)
			}
		case msg, ok := <-notifications:
			if !ok {
				return errors.Annotate(signaling.ErrClosed, "notifications")
			}

			c.handleNotification(msg)
		}
	}

	c.log.Info("All producers closed", nil)

	return nil
}

func (c *controller) printf(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(c.out, format, args...); err != nil {
		c.log.Error("Write output", errors.Trace(err), nil)
	}
}

func (c *controller) producer(kind string) (*producer.Producer, error) {
	trackKind, ok := transport.ParseTrackKind(kind)
	if !ok {
		return nil, errors.NotValidf("kind %q", kind)
	}

	p, ok := c.producers[trackKind]
	if !ok {
		return nil, errors.NotFoundf("%s producer", trackKind)
	}

	return p, nil
}

func (c *controller) handleLine(ctx context.Context, line string) error {
	fields := strings.Fields(line)

	if len(fields) == 0 {
		return nil
	}

	if fields[0] == "help" {
		c.printf("%s", controlUsage)

		return nil
	}

	if len(fields) < 2 {
		return errors.NotValidf("command %q", line)
	}

	p, err := c.producer(fields[1])
	if err != nil {
		return errors.Trace(err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	switch fields[0] {
	case "pause":
		err = c.pause(ctx, p)
	case "resume":
		err = c.resume(ctx, p)
	case "layer":
		if len(fields) != 3 {
			return errors.NotValidf("command %q", line)
		}

		err = c.setMaxSpatialLayer(p, fields[2])
	case "stats":
		err = c.stats(p)
	case "close":
		err = c.close(ctx, p)
	default:
		return errors.NotValidf("command %q", fields[0])
	}

	return errors.Trace(err)
}

func (c *controller) pause(ctx context.Context, p *producer.Producer) error {
	if err := p.Pause(); err != nil {
		return errors.Trace(err)
	}

	if err := c.remote.PauseProducer(ctx, p.ID()); err != nil {
		return errors.Trace(err)
	}

	c.printf("paused %s\n", p.Kind())

	return nil
}

func (c *controller) resume(ctx context.Context, p *producer.Producer) error {
	if err := p.Resume(); err != nil {
		return errors.Trace(err)
	}

	if err := c.remote.ResumeProducer(ctx, p.ID()); err != nil {
		return errors.Trace(err)
	}

	c.printf("resumed %s\n", p.Kind())

	return nil
}

func (c *controller) setMaxSpatialLayer(p *producer.Producer, value string) error {
	layer, err := strconv.ParseUint(value, 10, 8)
	if err != nil {
		return errors.NotValidf("layer %q", value)
	}

	if err := p.SetMaxSpatialLayer(uint8(layer)); err != nil {
		return errors.Trace(err)
	}

	c.printf("max spatial layer of %s set to %d\n", p.Kind(), layer)

	return nil
}

func (c *controller) stats(p *producer.Producer) error {
	report, err := p.Stats()
	if err != nil {
		return errors.Trace(err)
	}

	b, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return errors.Annotate(err, "marshal stats")
	}

	c.printf("%s\n", b)

	return nil
}

func (c *controller) close(ctx context.Context, p *producer.Producer) error {
	p.Close()
	delete(c.producers, p.Kind())

	c.printf("closed %s\n", p.Kind())

	return errors.Trace(c.remote.CloseProducer(ctx, p.ID()))
}

func (c *controller) handleNotification(msg signaling.Message) {
	if msg.Method != signaling.NotificationProducerClosed {
		c.log.Debug("Ignoring notification", logger.Ctx{
			"method": msg.Method,
		})

		return
	}

	producerID, err := signaling.ParseProducerClosed(msg)
	if err != nil {
		c.log.Error("Parse notification", errors.Trace(err), nil)

		return
	}

	for kind, p := range c.producers {
		if p.ID() != producerID {
			continue
		}

		c.log.Info("Producer closed by server", logger.Ctx{
			"producer_id": producerID,
		})

		p.Close()
		delete(c.producers, kind)

		c.printf("closed %s by server\n", kind)

		return
	}

	c.log.Warn("Unknown producer closed", logger.Ctx{
		"producer_id": producerID,
	})
}
