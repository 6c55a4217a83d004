package observability

import (
	"bytes"
	"fmt"
	"sort"
)

// SessionMetricsProvider exposes the dialogue manager's live session count.
type SessionMetricsProvider interface {
	Count() int
}

// PrometheusExporter renders observability metrics in Prometheus text format.
type PrometheusExporter struct {
	counter  *EventCounter
	sessions SessionMetricsProvider
}

// NewPrometheusExporter constructs an exporter backed by the event counter.
func NewPrometheusExporter(counter *EventCounter) *PrometheusExporter {
	return &PrometheusExporter{counter: counter}
}

// WithSessions enables exporting the live session gauge.
func (e *PrometheusExporter) WithSessions(provider SessionMetricsProvider) {
	e.sessions = provider
}

// Export produces the metrics payload in Prometheus' text exposition format.
func (e *PrometheusExporter) Export() []byte {
	var buf bytes.Buffer
	e.writeEventCounters(&buf)
	e.writeSessionMetrics(&buf)
	return buf.Bytes()
}

func (e *PrometheusExporter) writeEventCounters(buf *bytes.Buffer) {
	if e.counter == nil {
		return
	}

	counts := e.counter.Snapshot()
	if len(counts) == 0 {
		return
	}

	buf.WriteString("# HELP parley_bus_messages_total Total number of published messages per topic.\n")
	buf.WriteString("# TYPE parley_bus_messages_total counter\n")

	topics := make([]string, 0, len(counts))
	for topic := range counts {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	for _, topic := range topics {
		buf.WriteString(fmt.Sprintf("parley_bus_messages_total{topic=%q} %d\n", topic, counts[topic]))
	}
}

func (e *PrometheusExporter) writeSessionMetrics(buf *bytes.Buffer) {
	if e.sessions == nil {
		return
	}

	buf.WriteString("# HELP parley_dialogue_sessions_active Number of live dialogue sessions.\n")
	buf.WriteString("# TYPE parley_dialogue_sessions_active gauge\n")
	buf.WriteString(fmt.Sprintf("parley_dialogue_sessions_active %d\n", e.sessions.Count()))
}
