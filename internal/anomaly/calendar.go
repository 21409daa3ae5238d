package anomaly

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/invoice-anomaly/internal/invoice"
)

// WeekendDateDetector flags invoices dated on a Saturday or Sunday
type WeekendDateDetector struct{}

// NewWeekendDateDetector creates a WeekendDateDetector
func NewWeekendDateDetector() *WeekendDateDetector {
	return &WeekendDateDetector{}
}

// Name implements Detector
func (d *WeekendDateDetector) Name() string {
	return string(Weekend)
}

// Detect implements Detector
func (d *WeekendDateDetector) Detect(records []invoice.Record) []Anomaly {
	found := make([]Anomaly, 0)
	for _, r := range records {
		day := r.Date.Weekday()
		if day != time.Saturday && day != time.Sunday {
			continue
		}
		found = append(found, newAnomaly(r, Weekend, Low, 0.5, fmt.Sprintf(
			"Invoice dated on a weekend (%s %s)", day, r.Date.Format(time.DateOnly),
		)))
	}
	return found
}

// RoundNumberDetector flags large amounts that are exact multiples of a unit
type RoundNumberDetector struct {
	unit decimal.Decimal
}

// NewRoundNumberDetector creates a detector for exact multiples of unit
func NewRoundNumberDetector(unit int64) *RoundNumberDetector {
	return &RoundNumberDetector{unit: decimal.NewFromInt(unit)}
}

// Name implements Detector
func (d *RoundNumberDetector) Name() string {
	return string(RoundNumber)
}

// Detect implements Detector
func (d *RoundNumberDetector) Detect(records []invoice.Record) []Anomaly {
	found := make([]Anomaly, 0)
	if !d.unit.IsPositive() {
		return found
	}
	for _, r := range records {
		if r.Amount.LessThan(d.unit) || !r.Amount.Mod(d.unit).IsZero() {
			continue
		}
		found = append(found, newAnomaly(r, RoundNumber, Low, 0.4, fmt.Sprintf(
			"Round amount %s is an exact multiple of %s", formatAmount(r.Amount), d.unit.String(),
		)))
	}
	return found
}
