/*
Package types defines the domain records shared across the filing monitor:
the member registry, the processing ledger and the transaction records
extracted from disclosure documents.
*/
package types

import "time"

// FilingStatus is the lifecycle state of a filing. An empty string is
// legacy data and is treated the same as StatusPending everywhere.
type FilingStatus string

const (
	StatusPending   FilingStatus = "pending"
	StatusProcessed FilingStatus = "processed"
	StatusFailed    FilingStatus = "failed"
)

// Valid reports whether s is a recognized status value.
func (s FilingStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessed, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s is an end state with no automatic transition out.
func (s FilingStatus) Terminal() bool {
	return s == StatusProcessed || s == StatusFailed
}

// NeedsProcessing reports whether a filing with this status should be queued.
// Legacy filings with no status at all count as pending.
func (s FilingStatus) NeedsProcessing() bool {
	return s == "" || s == StatusPending
}

// Filing is one disclosed document belonging to a member. PDFLink is the
// global uniqueness key; PDFID is derived from the link's last path segment.
type Filing struct {
	PDFID                string       `json:"pdf_id"`
	Year                 string       `json:"year"`
	FilingType           string       `json:"filing_type"`
	PDFLink              string       `json:"pdf_link"`
	ScrapedDate          string       `json:"scraped_date"`
	ProcessingStatus     FilingStatus `json:"processing_status,omitempty"`
	StatusUpdated        string       `json:"status_updated,omitempty"`
	ProcessedAt          string       `json:"processed_at,omitempty"`
	FailedAt             string       `json:"failed_at,omitempty"`
	Error                string       `json:"error,omitempty"`
	HasStockTransactions *bool        `json:"has_stock_transactions,omitempty"`
}

// Member groups all filings disclosed by one official.
type Member struct {
	Name    string   `json:"name"`
	Office  string   `json:"office"`
	Filings []Filing `json:"filings"`
}

// Registry is the master filing collection persisted as congress_filings.json.
// TotalMembers and TotalFilings are derived from Members and recomputed on
// every save; they are never trusted from disk.
type Registry struct {
	LastUpdated  string             `json:"last_updated"`
	TotalMembers int                `json:"total_members"`
	TotalFilings int                `json:"total_filings"`
	Members      map[string]*Member `json:"members"`
}

// PendingFiling is one work item awaiting download and extraction,
// keyed by PDFURL.
type PendingFiling struct {
	MemberName   string `json:"member_name"`
	PDFID        string `json:"pdf_id"`
	PDFURL       string `json:"pdf_url"`
	FilingType   string `json:"filing_type"`
	Year         string `json:"year"`
	DiscoveredAt string `json:"discovered_at,omitempty"`
}

// LedgerSummary holds derived counts over the ledger collections.
type LedgerSummary struct {
	TotalPDFs     int `json:"total_pdfs"`
	ProcessedPDFs int `json:"processed_pdfs"`
	PendingPDFs   int `json:"pending_pdfs"`
}

// Ledger is the processing collection persisted as trading_data.json.
type Ledger struct {
	LastUpdated       string                     `json:"last_updated"`
	PendingProcessing []PendingFiling            `json:"pending_processing"`
	ProcessedFilings  map[string]ProcessedResult `json:"processed_filings"`
	Summary           LedgerSummary              `json:"summary"`
}

// MemberInfo is the metadata parsed from a filing's first page. Fields are
// best-effort; any of them may be empty.
type MemberInfo struct {
	FilingID string `json:"filing_id,omitempty"`
	Name     string `json:"name,omitempty"`
	District string `json:"district,omitempty"`
}

// TransactionType is the parsed kind of a securities event.
type TransactionType string

const (
	TypePurchase TransactionType = "Purchase"
	TypeSale     TransactionType = "Sale"
	TypeUnknown  TransactionType = "Unknown"
)

// Transaction is one parsed securities event from a disclosure document.
type Transaction struct {
	Asset            string          `json:"asset"`
	Ticker           string          `json:"ticker"`
	Owner            string          `json:"owner"`
	OwnerCode        string          `json:"owner_code"`
	TransactionType  TransactionType `json:"transaction_type"`
	TransactionDate  string          `json:"transaction_date"`
	NotificationDate string          `json:"notification_date"`
	Amount           string          `json:"amount"`
}

// ProcessedResult is the ledger record for one completed extraction attempt,
// keyed by pdf_id. On failure Error is set and Transactions is empty;
// Permanent marks failures that must never be retried.
type ProcessedResult struct {
	PDFURL                string        `json:"pdf_url"`
	MemberInfo            MemberInfo    `json:"member_info"`
	StockTransactionCount int           `json:"stock_transaction_count"`
	Transactions          []Transaction `json:"transactions"`
	ParsedAt              string        `json:"parsed_at"`
	Error                 string        `json:"error,omitempty"`
	Permanent             bool          `json:"permanent,omitempty"`
}

// PendingInfo is the denormalized context handed to the pipeline for one
// pending filing, assembled from the registry in a single pass.
type PendingInfo struct {
	MemberKey  string
	MemberName string
	PDFURL     string
	PDFID      string
	FilingType string
	Year       string
}

// Timestamp formats t the way both JSON files store times.
func Timestamp(t time.Time) string {
	return t.Format("2006-01-02T15:04:05")
}
