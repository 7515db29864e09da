// Package domain defines the core interfaces and types for the
// credit-intelligence alert engine.
package domain

import (
	"time"

	"github.com/sebasrosalesr/credit-intelligence-center/internal/coerce"
)

// Store field names for credit-request records. These follow the external
// document schema and must not be renamed independently of the store.
const (
	FieldAmount     = "Credit Request Total"
	FieldInvoice    = "Invoice Number"
	FieldItem       = "Item Number"
	FieldCustomer   = "Customer Number"
	FieldResolution = "RTN_CR_No"
	FieldDate       = "Date"
	FieldCreatedAt  = "Created At"
	FieldCreatedAlt = "created_at"
	FieldSalesRep   = "Sales Rep"
)

// Output field names written back onto each record.
const (
	FieldAlertFlags   = "alert_flags"
	FieldAlertScore   = "alert_score"
	FieldAlertLabel   = "alert_label"
	FieldAlertFactors = "alert_factors"
	FieldAlertLastRun = "alert_last_run"
)

// UnknownBucket is the catch-all key for concentration totals when a record
// is missing its rep or item identifier.
const UnknownBucket = "Unknown"

// CreditRequest is a single credit-request record parsed from the store's
// loose key/value document. Fields may be zero-valued when the source record
// is missing or malformed; parsing never fails a record, it only degrades.
type CreditRequest struct {
	ID             string
	Amount         float64
	InvoiceNumber  string
	ItemNumber     string
	CustomerNumber string
	Resolution     string
	SalesRep       string

	// Date is the effective date used for windowed aggregation.
	// EffectiveDate prefers CreatedAt when both are present.
	Date      time.Time
	HasDate   bool
	CreatedAt time.Time
	HasCreate bool
}

// ParseRecord builds a CreditRequest from a raw store document.
// Returns false when the value is not a well-formed object; such records
// are skipped entirely and do not count toward a run's processed total.
func ParseRecord(id string, raw any) (*CreditRequest, bool) {
	doc, ok := raw.(map[string]any)
	if !ok {
		return nil, false
	}

	rec := &CreditRequest{
		ID:             id,
		Amount:         coerce.ToNumber(doc[FieldAmount]),
		InvoiceNumber:  stringField(doc, FieldInvoice),
		ItemNumber:     stringField(doc, FieldItem),
		CustomerNumber: stringField(doc, FieldCustomer),
		Resolution:     stringField(doc, FieldResolution),
		SalesRep:       stringField(doc, FieldSalesRep),
	}

	rec.Date, rec.HasDate = coerce.ToDate(doc[FieldDate])

	created := doc[FieldCreatedAt]
	if created == nil {
		created = doc[FieldCreatedAlt]
	}
	rec.CreatedAt, rec.HasCreate = coerce.ToDate(created)

	return rec, true
}

// Pending reports whether the record is still awaiting resolution.
// The literal token "nan" survives spreadsheet ingestion and counts as empty.
func (r *CreditRequest) Pending() bool {
	return r.Resolution == "" || r.Resolution == "nan"
}

// EffectiveDate returns the creation timestamp when present, otherwise the
// record date. Used for aging and pending-trend windows.
func (r *CreditRequest) EffectiveDate() (time.Time, bool) {
	if r.HasCreate {
		return r.CreatedAt, true
	}
	return r.Date, r.HasDate
}

// AgeDays returns the record's age in whole days relative to today,
// or false when no usable date is present.
func (r *CreditRequest) AgeDays(today time.Time) (int, bool) {
	d, ok := r.EffectiveDate()
	if !ok {
		return 0, false
	}
	return coerce.WholeDays(d, today), true
}

func stringField(doc map[string]any, key string) string {
	v, ok := doc[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return coerce.Stringify(v)
}
