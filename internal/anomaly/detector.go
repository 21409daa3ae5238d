package anomaly

import (
	"github.com/shopspring/decimal"

	"github.com/zombor/invoice-anomaly/internal/invoice"
)

// Detector inspects a record snapshot and reports anomalies.
// Implementations must not modify records and must not depend on
// another detector's output.
type Detector interface {
	// Name identifies the detector in logs
	Name() string
	// Detect returns findings in discovery order, without IDs
	Detect(records []invoice.Record) []Anomaly
}

// Thresholds holds the tunable heuristics used by the detectors
type Thresholds struct {
	DuplicateWindowDays     int
	DuplicateTolerance      float64
	RoundNumberUnit         int64
	OutlierSigma            float64
	OutlierMinSample        int
	UnusualVendorMultiplier float64
}

// DefaultThresholds returns the production heuristics
func DefaultThresholds() Thresholds {
	return Thresholds{
		DuplicateWindowDays:     7,
		DuplicateTolerance:      0.01,
		RoundNumberUnit:         10000,
		OutlierSigma:            3,
		OutlierMinSample:        3,
		UnusualVendorMultiplier: 2,
	}
}

// DefaultDetectors returns the standard detector set in its fixed order
func DefaultDetectors(t Thresholds) []Detector {
	return []Detector{
		NewDuplicateAmountDetector(t.DuplicateWindowDays, t.DuplicateTolerance),
		NewWeekendDateDetector(),
		NewRoundNumberDetector(t.RoundNumberUnit),
		NewStatisticalOutlierDetector(t.OutlierSigma, t.OutlierMinSample),
		NewFirstTimeVendorDetector(t.UnusualVendorMultiplier),
	}
}

func formatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}
