package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/crystal-mush/palsave/pkg/events"
	"github.com/crystal-mush/palsave/pkg/savedb"
	"github.com/crystal-mush/palsave/pkg/savedb/savetest"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(body)
}

func expectLines(t *testing.T, body string, lines ...string) {
	t.Helper()
	for _, want := range lines {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output lacks %q", want)
		}
	}
}

func TestCountsDocumentEvents(t *testing.T) {
	m := New(prometheus.NewRegistry(), time.Now())
	bus := events.NewBus()
	bus.SubscribeGlobal(m)

	w := savetest.New()
	level, players, err := w.Files()
	if err != nil {
		t.Fatal(err)
	}
	doc, err := savedb.Load(savedb.Input{Level: level, Players: players}, savedb.Options{Bus: bus})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	m.Attach(doc)
	if err := doc.DeletePal(w.Player.Pal); err != nil {
		t.Fatal(err)
	}
	doc.MarkStale("Level.sav written")

	expectLines(t, scrape(t, m),
		`palsave_events_total{type="loaded"} 1`,
		`palsave_events_total{type="pal_deleted"} 1`,
		`palsave_events_total{type="stale"} 1`,
		`palsave_entities{kind="pal"} 2`,
		`palsave_entities{kind="guild"} 2`,
		`palsave_entities{kind="player"} 2`,
		"palsave_stale 1",
		"palsave_consistency_warnings 0",
	)
}

func TestHandlerServesMetrics(t *testing.T) {
	m := New(nil, time.Now().Add(-time.Minute))
	m.Receive(events.Event{Type: events.EvSaved})
	body := scrape(t, m)
	expectLines(t, body,
		`palsave_events_total{type="saved"} 1`,
		"palsave_uptime_seconds",
		"palsave_last_save_timestamp_seconds",
	)
	if strings.Contains(body, "palsave_entities{") {
		t.Error("entity gauges reported without a document")
	}
}
