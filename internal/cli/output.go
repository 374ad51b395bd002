package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dmitrymomot/machinekit/pkg/caller"
	"github.com/dmitrymomot/machinekit/pkg/statemachine"
	"github.com/dmitrymomot/machinekit/pkg/telemetry"
)

// ValidOutputs defines the allowed record output formats.
var ValidOutputs = []string{"text", "json"}

type recordWriter struct {
	w    io.Writer
	json bool
}

func newRecordWriter(w io.Writer, format string) (*recordWriter, error) {
	switch format {
	case "text":
		return &recordWriter{w: w}, nil
	case "json":
		return &recordWriter{w: w, json: true}, nil
	default:
		return nil, fmt.Errorf("unknown format %q: must be one of %v", format, ValidOutputs)
	}
}

// write prints one record. Text lines leave out timings so runs can be
// compared verbatim.
func (r *recordWriter) write(rec statemachine.Record) {
	if r.json {
		_ = json.NewEncoder(r.w).Encode(telemetry.NewTransition(context.Background(), rec))
		return
	}

	outcome := telemetry.OutcomeOf(rec)
	if rec.Err != nil {
		outcome += ": " + rec.Err.Error()
	}
	fmt.Fprintf(r.w, "%s: %v --%s--> %v (%s)\n", rec.Machine, rec.From, rec.Event, rec.To, outcome)
}

// runSummary counts records of the outer machine.
type runSummary struct {
	total     int
	succeeded int
	failed    int
	errors    int
}

func (s *runSummary) add(rec statemachine.Record) int {
	s.total++
	switch telemetry.OutcomeOf(rec) {
	case telemetry.OutcomeError:
		s.errors++
	case telemetry.OutcomeFailed:
		s.failed++
	default:
		s.succeeded++
	}
	return s.total
}

func (s *runSummary) print(w io.Writer, c *caller.Caller[string]) {
	fmt.Fprintf(w, "events: %d succeeded: %d failed: %d errors: %d\n", s.total, s.succeeded, s.failed, s.errors)
	fmt.Fprintf(w, "state: %s\n", c.State())
	if sub := c.Substate(); sub != nil {
		fmt.Fprintf(w, "substate: %v\n", sub)
	}
}

// printMetrics writes counters and gauges gathered from reg, one series per
// line, sorted by name and labels.
func printMetrics(w io.Writer, reg prometheus.Gatherer) {
	families, err := reg.Gather()
	if err != nil {
		fmt.Fprintf(w, "metrics unavailable: %v\n", err)
		return
	}

	var lines []string
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			var value float64
			switch {
			case metric.GetCounter() != nil:
				value = metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				value = metric.GetGauge().GetValue()
			default:
				continue
			}
			labels := make([]string, 0, len(metric.GetLabel()))
			for _, lp := range metric.GetLabel() {
				labels = append(labels, fmt.Sprintf("%s=%q", lp.GetName(), lp.GetValue()))
			}
			lines = append(lines, fmt.Sprintf("%s{%s} %g", mf.GetName(), strings.Join(labels, ","), value))
		}
	}
	sort.Strings(lines)
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
}
