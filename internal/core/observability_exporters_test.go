package core

import (
	"bytes"
	"context"
	"errors"
	"expvar"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestExpvarMetricsRecorderAggregates(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	if rec.Name() == "" {
		t.Fatalf("expected generated name")
	}
	rec.Observe(context.Background(), "change_status", true, 20*time.Millisecond)
	rec.Observe(context.Background(), "change_status", false, 5*time.Millisecond)
	rec.Observe(context.Background(), "", true, time.Millisecond)

	snap := rec.Snapshot()
	m, ok := snap["change_status"]
	if !ok {
		t.Fatalf("missing operation in snapshot: %+v", snap)
	}
	if m.Success != 1 || m.Error != 1 || m.DurationMS != 25 {
		t.Fatalf("unexpected aggregation %+v", m)
	}
	if len(snap) != 1 {
		t.Fatalf("empty operation must be ignored: %+v", snap)
	}
	if expvar.Get(rec.Name()) == nil {
		t.Fatalf("recorder not published under %s", rec.Name())
	}
}

func TestJSONTraceTracerEmitsLines(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)
	ctx := context.Background()

	_, span := tracer.Start(ctx, "import_rows")
	span.End(nil)
	_, span = tracer.Start(ctx, "change_status")
	span.End(errors.New("boom"))

	entries := tracer.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(entries))
	}
	if entries[0].Operation != "import_rows" || entries[0].Status != "success" {
		t.Fatalf("unexpected first entry %+v", entries[0])
	}
	if entries[1].Status != "error" || entries[1].Error != "boom" {
		t.Fatalf("unexpected second entry %+v", entries[1])
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 || !strings.Contains(lines[1], `"status":"error"`) {
		t.Fatalf("unexpected encoded output %q", buf.String())
	}
}

func TestJSONTraceTracerNilWriterRetainsEntries(t *testing.T) {
	tracer := NewJSONTracer(nil)
	_, span := tracer.Start(context.Background(), "create_manual")
	span.End(nil)
	if len(tracer.Entries()) != 1 {
		t.Fatalf("expected retained span")
	}
}

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewPrometheusMetricsRecorder(reg)
	rec.Observe(context.Background(), "change_status", true, 30*time.Millisecond)
	rec.Observe(context.Background(), "change_status", false, 10*time.Millisecond)
	rec.Observe(context.Background(), "", true, time.Millisecond)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := map[string]bool{}
	for _, fam := range families {
		found[fam.GetName()] = true
	}
	if !found["chantiercore_service_operation_duration_seconds"] || !found["chantiercore_service_operation_results_total"] {
		t.Fatalf("expected both metric families, got %v", found)
	}

	var successCount, errorCount float64
	for _, fam := range families {
		if fam.GetName() != "chantiercore_service_operation_results_total" {
			continue
		}
		for _, metric := range fam.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "status" {
					switch label.GetValue() {
					case "success":
						successCount = metric.GetCounter().GetValue()
					case "error":
						errorCount = metric.GetCounter().GetValue()
					}
				}
			}
		}
	}
	if successCount != 1 || errorCount != 1 {
		t.Fatalf("unexpected counters: success=%v error=%v", successCount, errorCount)
	}
}
