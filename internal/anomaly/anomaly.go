package anomaly

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/invoice-anomaly/internal/invoice"
)

// Type is the kind of irregularity a detector found
type Type string

const (
	Duplicate     Type = "duplicate"
	Weekend       Type = "weekend"
	RoundNumber   Type = "round_number"
	Outlier       Type = "outlier"
	UnusualVendor Type = "unusual_vendor"
)

// Severity is the fixed urgency a detector assigns to its findings
type Severity string

const (
	High   Severity = "high"
	Medium Severity = "medium"
	Low    Severity = "low"
)

// Rank orders severities for sorting, most urgent first
func (s Severity) Rank() int {
	switch s {
	case High:
		return 0
	case Medium:
		return 1
	default:
		return 2
	}
}

// Anomaly is one flagged invoice. Anomalies live for a single scan only.
type Anomaly struct {
	ID               string
	Type             Type
	Severity         Severity
	InvoiceID        string
	InvoiceNumber    string
	VendorName       string
	Amount           decimal.Decimal
	Date             time.Time
	Description      string
	Confidence       float64
	RelatedInvoiceID string
}

// newAnomaly copies the identifying fields of the triggering record
func newAnomaly(r invoice.Record, t Type, sev Severity, confidence float64, description string) Anomaly {
	return Anomaly{
		Type:          t,
		Severity:      sev,
		InvoiceID:     r.ID,
		InvoiceNumber: r.Number,
		VendorName:    r.VendorName,
		Amount:        r.Amount,
		Date:          r.Date,
		Description:   description,
		Confidence:    confidence,
	}
}

type anomalyJSON struct {
	ID               string      `json:"id"`
	Type             Type        `json:"type"`
	Severity         Severity    `json:"severity"`
	InvoiceID        string      `json:"invoice_id"`
	InvoiceNumber    string      `json:"invoice_number"`
	VendorName       string      `json:"vendor_name"`
	Amount           json.Number `json:"amount"`
	Date             string      `json:"date"`
	Description      string      `json:"description"`
	Confidence       float64     `json:"confidence"`
	RelatedInvoiceID string      `json:"related_invoice_id,omitempty"`
}

// MarshalJSON writes the amount as a JSON number and the date as YYYY-MM-DD
func (a Anomaly) MarshalJSON() ([]byte, error) {
	return json.Marshal(anomalyJSON{
		ID:               a.ID,
		Type:             a.Type,
		Severity:         a.Severity,
		InvoiceID:        a.InvoiceID,
		InvoiceNumber:    a.InvoiceNumber,
		VendorName:       a.VendorName,
		Amount:           json.Number(a.Amount.String()),
		Date:             a.Date.Format(time.DateOnly),
		Description:      a.Description,
		Confidence:       a.Confidence,
		RelatedInvoiceID: a.RelatedInvoiceID,
	})
}

// Brief is the reduced view of an anomaly handed to the narrative step
type Brief struct {
	Type        Type        `json:"type"`
	Severity    Severity    `json:"severity"`
	VendorName  string      `json:"vendor_name"`
	Amount      json.Number `json:"amount"`
	Description string      `json:"description"`
}

// Summary counts anomalies by severity
type Summary struct {
	Total  int `json:"total"`
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}
