package logger

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Message is a single log entry passed to a Formatter.
type Message struct {
	Timestamp time.Time
	Namespace string
	Level     Level
	Body      string
	Ctx       Ctx
}

// Formatter serializes a Message before it is written.
type Formatter interface {
	Format(message Message) ([]byte, error)
}

// StringFormatter formats messages as single lines of text.
type StringFormatter struct {
	params StringFormatterParams
}

type StringFormatterParams struct {
	// DateLayout is passed to time.Time.Format. Defaults to microsecond
	// precision RFC3339.
	DateLayout string

	// DisableContextKeySorting prints context keys in map iteration order.
	DisableContextKeySorting bool
}

var _ Formatter = &StringFormatter{}

func NewStringFormatter(params StringFormatterParams) *StringFormatter {
	if params.DateLayout == "" {
		params.DateLayout = "2006-01-02T15:04:05.000000Z07:00"
	}

	return &StringFormatter{params}
}

func (f *StringFormatter) Format(message Message) ([]byte, error) {
	var b strings.Builder

	fmt.Fprintf(&b, "%s %5s [%20s] %s",
		message.Timestamp.Format(f.params.DateLayout),
		message.Level,
		message.Namespace,
		strings.TrimRight(message.Body, "\n"),
	)

	keys := make([]string, 0, len(message.Ctx))

	for k := range message.Ctx {
		keys = append(keys, k)
	}

	if !f.params.DisableContextKeySorting {
		sort.Strings(keys)
	}

	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%+v", k, message.Ctx[k])
	}

	b.WriteString("\n")

	return []byte(b.String()), nil
}
