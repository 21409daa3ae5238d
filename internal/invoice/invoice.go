package invoice

import (
	"time"

	"github.com/shopspring/decimal"
)

// Source identifies which side of the ledger an invoice came from
type Source string

const (
	Receivable Source = "receivable"
	Payable    Source = "payable"
)

const (
	// UnknownVendor is used when a vendor id has no display name
	UnknownVendor = "Unknown"
	// MissingNumber is used when an invoice has no number
	MissingNumber = "N/A"
)

// ReceivableInvoice is a customer invoice row as stored
type ReceivableInvoice struct {
	ID            string              `json:"id"`
	PartnerID     *string             `json:"partner_id"`
	AmountTotal   decimal.NullDecimal `json:"amount_total"`
	InvoiceDate   time.Time           `json:"invoice_date"`
	InvoiceNumber *string             `json:"invoice_number"`
}

// PayableInvoice is a supplier bill row as stored
type PayableInvoice struct {
	ID          string              `json:"id"`
	SupplierID  *string             `json:"supplier_id"`
	TotalAmount decimal.NullDecimal `json:"total_amount"`
	BillDate    time.Time           `json:"bill_date"`
	BillNumber  *string             `json:"bill_number"`
}

// Record is the uniform invoice shape the detectors work on.
// A scan treats its records as read-only.
type Record struct {
	ID         string
	Source     Source
	VendorID   *string // nil when the invoice has no counter-party
	VendorName string
	Amount     decimal.Decimal
	Date       time.Time // calendar date, UTC midnight
	Number     string
}

// HasVendor reports whether the record can be grouped by vendor
func (r Record) HasVendor() bool {
	return r.VendorID != nil
}

// Vendor returns the vendor id or "" when absent
func (r Record) Vendor() string {
	if r.VendorID == nil {
		return ""
	}
	return *r.VendorID
}
