package logformatter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/peer-calls/mediaproducer/server/logger"
)

// ProducerIDKey is pulled out of the context and printed in its own column
// so that lines of concurrent producers can be told apart at a glance.
const ProducerIDKey = "producer_id"

const (
	timeLayout      = "2006-01-02T15:04:05.000000Z07:00"
	namespaceLength = 20
)

// LogFormatter formats console output of the publish command.
type LogFormatter struct {
	timeLayout string
}

var _ logger.Formatter = &LogFormatter{}

type Params struct {
	// TimeLayout overrides the default microsecond precision timestamps.
	TimeLayout string
}

func New(params Params) *LogFormatter {
	if params.TimeLayout == "" {
		params.TimeLayout = timeLayout
	}

	return &LogFormatter{
		timeLayout: params.TimeLayout,
	}
}

func (f *LogFormatter) Format(message logger.Message) ([]byte, error) {
	keys := make([]string, 0, len(message.Ctx))

	var producerID string

	for k, v := range message.Ctx {
		if k == ProducerIDKey {
			producerID = fmt.Sprintf("%s", v)

			continue
		}

		keys = append(keys, k)
	}

	sort.Strings(keys)

	namespace := message.Namespace

	// Keep the tail since the innermost sections are the most specific.
	if len(namespace) > namespaceLength {
		namespace = namespace[len(namespace)-namespaceLength:]
	}

	var b strings.Builder

	fmt.Fprintf(&b, "%s %5s [%20s] ",
		message.Timestamp.Format(f.timeLayout),
		message.Level,
		namespace,
	)

	if producerID != "" {
		fmt.Fprintf(&b, "[%s] ", producerID)
	}

	b.WriteString(strings.TrimRight(message.Body, "\n"))

	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%+v", k, message.Ctx[k])
	}

	b.WriteString("\n")

	return []byte(b.String()), nil
}
