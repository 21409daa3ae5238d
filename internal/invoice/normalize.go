package invoice

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Normalize merges receivable and payable rows into one record list.
// Receivables come first, each side keeps its input order. Missing
// amounts become zero and missing numbers become MissingNumber so the
// detectors never have to handle absent fields.
func Normalize(receivables []ReceivableInvoice, payables []PayableInvoice) []Record {
	records := make([]Record, 0, len(receivables)+len(payables))
	for _, inv := range receivables {
		records = append(records, Record{
			ID:         inv.ID,
			Source:     Receivable,
			VendorID:   vendorRef(inv.PartnerID),
			VendorName: UnknownVendor,
			Amount:     amountOrZero(inv.AmountTotal),
			Date:       CalendarDate(inv.InvoiceDate),
			Number:     numberOrMissing(inv.InvoiceNumber),
		})
	}
	for _, bill := range payables {
		records = append(records, Record{
			ID:         bill.ID,
			Source:     Payable,
			VendorID:   vendorRef(bill.SupplierID),
			VendorName: UnknownVendor,
			Amount:     amountOrZero(bill.TotalAmount),
			Date:       CalendarDate(bill.BillDate),
			Number:     numberOrMissing(bill.BillNumber),
		})
	}
	return records
}

func vendorRef(id *string) *string {
	if id == nil {
		return nil
	}
	v := strings.TrimSpace(*id)
	if v == "" {
		return nil
	}
	return &v
}

func amountOrZero(d decimal.NullDecimal) decimal.Decimal {
	if !d.Valid || d.Decimal.IsNegative() {
		return decimal.Zero
	}
	return d.Decimal
}

func numberOrMissing(n *string) string {
	if n == nil {
		return MissingNumber
	}
	v := strings.TrimSpace(*n)
	if v == "" {
		return MissingNumber
	}
	return v
}

// CalendarDate drops the time of day. The date is read in the timestamp's
// own location so an invoice stored at local midnight keeps its day.
func CalendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
