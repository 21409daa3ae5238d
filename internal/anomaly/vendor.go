package anomaly

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/zombor/invoice-anomaly/internal/invoice"
)

// vendorGroup holds the records of one vendor in corpus order
type vendorGroup struct {
	vendorID string
	records  []invoice.Record
}

// groupByVendor groups records with a vendor, groups in first seen order
func groupByVendor(records []invoice.Record) []*vendorGroup {
	index := make(map[string]*vendorGroup)
	groups := make([]*vendorGroup, 0)
	for _, r := range records {
		if !r.HasVendor() {
			continue
		}
		g, ok := index[r.Vendor()]
		if !ok {
			g = &vendorGroup{vendorID: r.Vendor()}
			index[r.Vendor()] = g
			groups = append(groups, g)
		}
		g.records = append(g.records, r)
	}
	return groups
}

// StatisticalOutlierDetector flags amounts far from their vendor's mean
type StatisticalOutlierDetector struct {
	sigma     float64
	minSample int
}

// NewStatisticalOutlierDetector creates a detector flagging amounts more than
// sigma population standard deviations from the vendor mean. Vendors with
// fewer than minSample invoices are ignored.
func NewStatisticalOutlierDetector(sigma float64, minSample int) *StatisticalOutlierDetector {
	return &StatisticalOutlierDetector{sigma: sigma, minSample: minSample}
}

// Name implements Detector
func (d *StatisticalOutlierDetector) Name() string {
	return string(Outlier)
}

// Detect implements Detector
func (d *StatisticalOutlierDetector) Detect(records []invoice.Record) []Anomaly {
	found := make([]Anomaly, 0)
	for _, g := range groupByVendor(records) {
		if len(g.records) < d.minSample {
			continue
		}
		amounts := make([]float64, len(g.records))
		for i, r := range g.records {
			amounts[i], _ = r.Amount.Float64()
		}
		mean, stddev := populationStats(amounts)
		if stddev <= 0 {
			continue
		}
		for i, r := range g.records {
			deviation := math.Abs(amounts[i] - mean)
			if deviation <= d.sigma*stddev {
				continue
			}
			found = append(found, newAnomaly(r, Outlier, High, 0.9, fmt.Sprintf(
				"Amount %s is %.1f standard deviations from the vendor average of %.2f",
				formatAmount(r.Amount), deviation/stddev, mean,
			)))
		}
	}
	return found
}

// populationStats returns the mean and population standard deviation
func populationStats(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	var squares float64
	for _, v := range values {
		squares += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(squares / float64(len(values)))
}

// FirstTimeVendorDetector flags a vendor's only invoice when it is large
// compared to the corpus average
type FirstTimeVendorDetector struct {
	multiplier decimal.Decimal
}

// NewFirstTimeVendorDetector creates a detector for single-invoice vendors
// whose amount exceeds multiplier times the corpus mean
func NewFirstTimeVendorDetector(multiplier float64) *FirstTimeVendorDetector {
	return &FirstTimeVendorDetector{multiplier: decimal.NewFromFloat(multiplier)}
}

// Name implements Detector
func (d *FirstTimeVendorDetector) Name() string {
	return string(UnusualVendor)
}

// Detect implements Detector
func (d *FirstTimeVendorDetector) Detect(records []invoice.Record) []Anomaly {
	found := make([]Anomaly, 0)
	mean := corpusMean(records)
	limit := mean.Mul(d.multiplier)

	counts := make(map[string]int)
	for _, r := range records {
		if r.HasVendor() {
			counts[r.Vendor()]++
		}
	}

	for _, r := range records {
		if !r.HasVendor() || counts[r.Vendor()] != 1 {
			continue
		}
		if !r.Amount.GreaterThan(limit) {
			continue
		}
		found = append(found, newAnomaly(r, UnusualVendor, Medium, 0.65, fmt.Sprintf(
			"First invoice from %s is %s, more than %s times the average of %s",
			r.VendorName, formatAmount(r.Amount), d.multiplier.String(), formatAmount(mean),
		)))
	}
	return found
}

// corpusMean averages every record amount, zero for an empty corpus
func corpusMean(records []invoice.Record) decimal.Decimal {
	if len(records) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, r := range records {
		sum = sum.Add(r.Amount)
	}
	return sum.Div(decimal.NewFromInt(int64(len(records))))
}
