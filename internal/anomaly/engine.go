package anomaly

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/zombor/invoice-anomaly/internal/invoice"
)

// Engine runs a detector set over a record snapshot and merges the results
type Engine struct {
	detectors []Detector
}

// NewEngine creates an Engine with the default detectors
func NewEngine(t Thresholds) *Engine {
	return NewEngineWithDetectors(DefaultDetectors(t)...)
}

// NewEngineWithDetectors creates an Engine with a custom detector set.
// Detector order decides anomaly ID order and tie order within a severity.
func NewEngineWithDetectors(detectors ...Detector) *Engine {
	return &Engine{detectors: detectors}
}

// Run executes all detectors concurrently and returns labelled,
// deduplicated, severity-ranked anomalies. The output depends only on
// records and the detector order.
func (e *Engine) Run(ctx context.Context, records []invoice.Record) ([]Anomaly, error) {
	groups := make([][]Anomaly, len(e.detectors))

	g, ctx := errgroup.WithContext(ctx)
	for i, d := range e.detectors {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			groups[i] = d.Detect(records)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("running detectors: %w", err)
	}

	return Rank(Dedupe(AssignIDs(groups))), nil
}

// AssignIDs flattens per-detector results and assigns anom-N IDs in detector
// order, then discovery order
func AssignIDs(groups [][]Anomaly) []Anomaly {
	labelled := make([]Anomaly, 0)
	n := 0
	for _, group := range groups {
		for _, a := range group {
			a.ID = fmt.Sprintf("anom-%d", n)
			n++
			labelled = append(labelled, a)
		}
	}
	return labelled
}

type dedupeKey struct {
	invoiceID string
	kind      Type
}

// Dedupe keeps the first anomaly for each (invoice, type) pair
func Dedupe(anomalies []Anomaly) []Anomaly {
	seen := make(map[dedupeKey]struct{}, len(anomalies))
	unique := make([]Anomaly, 0, len(anomalies))
	for _, a := range anomalies {
		key := dedupeKey{invoiceID: a.InvoiceID, kind: a.Type}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, a)
	}
	return unique
}

// Rank returns anomalies stably sorted high, medium, low
func Rank(anomalies []Anomaly) []Anomaly {
	ranked := make([]Anomaly, len(anomalies))
	copy(ranked, anomalies)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Severity.Rank() < ranked[j].Severity.Rank()
	})
	return ranked
}

// Summarize counts anomalies per severity
func Summarize(anomalies []Anomaly) Summary {
	s := Summary{Total: len(anomalies)}
	for _, a := range anomalies {
		switch a.Severity {
		case High:
			s.High++
		case Medium:
			s.Medium++
		case Low:
			s.Low++
		}
	}
	return s
}

// MeanConfidence averages anomaly confidences. A clean scan scores 1.0.
func MeanConfidence(anomalies []Anomaly) float64 {
	if len(anomalies) == 0 {
		return 1.0
	}
	var sum float64
	for _, a := range anomalies {
		sum += a.Confidence
	}
	return sum / float64(len(anomalies))
}

// DistinctTypes returns the anomaly types present, sorted by name
func DistinctTypes(anomalies []Anomaly) []Type {
	seen := make(map[Type]struct{})
	types := make([]Type, 0)
	for _, a := range anomalies {
		if _, ok := seen[a.Type]; ok {
			continue
		}
		seen[a.Type] = struct{}{}
		types = append(types, a.Type)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Top reduces the first n anomalies to briefs
func Top(anomalies []Anomaly, n int) []Brief {
	if n > len(anomalies) {
		n = len(anomalies)
	}
	if n < 0 {
		n = 0
	}
	briefs := make([]Brief, 0, n)
	for _, a := range anomalies[:n] {
		briefs = append(briefs, Brief{
			Type:        a.Type,
			Severity:    a.Severity,
			VendorName:  a.VendorName,
			Amount:      json.Number(a.Amount.String()),
			Description: a.Description,
		})
	}
	return briefs
}
