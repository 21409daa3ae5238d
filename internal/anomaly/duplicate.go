package anomaly

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/invoice-anomaly/internal/invoice"
)

// DuplicateAmountDetector flags same-vendor invoices with matching amounts
// issued a few days apart
type DuplicateAmountDetector struct {
	windowDays int
	tolerance  decimal.Decimal
}

// NewDuplicateAmountDetector creates a detector for pairs at most windowDays
// apart whose amounts differ by no more than tolerance
func NewDuplicateAmountDetector(windowDays int, tolerance float64) *DuplicateAmountDetector {
	return &DuplicateAmountDetector{
		windowDays: windowDays,
		tolerance:  decimal.NewFromFloat(tolerance),
	}
}

// Name implements Detector
func (d *DuplicateAmountDetector) Name() string {
	return string(Duplicate)
}

// Detect emits one anomaly per qualifying pair i<j, anchored on i.
// Same-day pairs are not reported.
func (d *DuplicateAmountDetector) Detect(records []invoice.Record) []Anomaly {
	found := make([]Anomaly, 0)
	for i := 0; i < len(records); i++ {
		a := records[i]
		if !a.HasVendor() || !a.Amount.IsPositive() {
			continue
		}
		for j := i + 1; j < len(records); j++ {
			b := records[j]
			if !b.HasVendor() || b.Vendor() != a.Vendor() || !b.Amount.IsPositive() {
				continue
			}
			if a.Amount.Sub(b.Amount).Abs().GreaterThan(d.tolerance) {
				continue
			}
			days := daysApart(a.Date, b.Date)
			if days <= 0 || days > d.windowDays {
				continue
			}
			anomaly := newAnomaly(a, Duplicate, High, 0.85, fmt.Sprintf(
				"Possible duplicate of invoice %s: same vendor %s and amount %s within %d days",
				b.Number, a.VendorName, formatAmount(a.Amount), days,
			))
			anomaly.RelatedInvoiceID = b.ID
			found = append(found, anomaly)
		}
	}
	return found
}

// daysApart returns the absolute number of whole days between two dates
func daysApart(a, b time.Time) int {
	diff := b.Sub(a)
	if diff < 0 {
		diff = -diff
	}
	return int(diff / (24 * time.Hour))
}
