package observability

import (
	"strings"
	"testing"
)

type fixedSessions int

func (f fixedSessions) Count() int { return int(f) }

func TestEventCounterSnapshot(t *testing.T) {
	counter := NewEventCounter()
	counter.OnPublish("parley/tts/say", []byte("{}"))
	counter.OnPublish("parley/tts/say", nil)
	counter.OnPublish("parley/dialogue/sessionStarted", nil)
	counter.OnPublish("", nil)

	counts := counter.Snapshot()
	if counts["parley/tts/say"] != 2 {
		t.Fatalf("say count: %d", counts["parley/tts/say"])
	}
	if counts["parley/dialogue/sessionStarted"] != 1 {
		t.Fatalf("started count: %d", counts["parley/dialogue/sessionStarted"])
	}
	if _, present := counts[""]; present {
		t.Fatal("empty topic counted")
	}
}

func TestExporterOutput(t *testing.T) {
	counter := NewEventCounter()
	counter.OnPublish("parley/nlu/query", nil)

	exporter := NewPrometheusExporter(counter)
	exporter.WithSessions(fixedSessions(3))

	out := string(exporter.Export())
	if !strings.Contains(out, `parley_bus_messages_total{topic="parley/nlu/query"} 1`) {
		t.Fatalf("missing counter line:\n%s", out)
	}
	if !strings.Contains(out, "parley_dialogue_sessions_active 3") {
		t.Fatalf("missing session gauge:\n%s", out)
	}
	if !strings.Contains(out, "# TYPE parley_bus_messages_total counter") {
		t.Fatalf("missing type header:\n%s", out)
	}
}

func TestExporterEmptyCounter(t *testing.T) {
	exporter := NewPrometheusExporter(NewEventCounter())
	if out := exporter.Export(); len(out) != 0 {
		t.Fatalf("expected empty export, got:\n%s", out)
	}
}
