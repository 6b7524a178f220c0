package store

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/jcarver/ptrwatch/internal/logger"
	"github.com/jcarver/ptrwatch/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := New(t.TempDir(), logger.NewWithWriter(io.Discard))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return st
}

func seedRegistry(t *testing.T, st *Store, filings ...types.Filing) {
	t.Helper()
	reg := &types.Registry{
		Members: map[string]*types.Member{
			"Doe, Jane_CA12": {
				Name:    "Doe, Jane",
				Office:  "CA12",
				Filings: filings,
			},
		},
	}
	if err := st.SaveRegistry(reg); err != nil {
		t.Fatalf("SaveRegistry failed: %v", err)
	}
}

func TestLoadRegistryEmpty(t *testing.T) {
	st := newTestStore(t)

	reg, err := st.LoadRegistry()
	if err != nil {
		t.Fatalf("LoadRegistry failed: %v", err)
	}
	if reg.Members == nil {
		t.Error("Members map should be initialized on empty load")
	}
	if reg.TotalMembers != 0 || reg.TotalFilings != 0 {
		t.Errorf("empty registry should have zero counts, got %d/%d", reg.TotalMembers, reg.TotalFilings)
	}
}

func TestLoadLedgerEmpty(t *testing.T) {
	st := newTestStore(t)

	led, err := st.LoadLedger()
	if err != nil {
		t.Fatalf("LoadLedger failed: %v", err)
	}
	if led.PendingProcessing == nil {
		t.Error("PendingProcessing should be initialized on empty load")
	}
	if led.ProcessedFilings == nil {
		t.Error("ProcessedFilings should be initialized on empty load")
	}
}

func TestLoadRegistryMalformed(t *testing.T) {
	st := newTestStore(t)
	if err := os.WriteFile(st.RegistryPath(), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	_, err := st.LoadRegistry()
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestLoadRegistryMissingMembers(t *testing.T) {
	st := newTestStore(t)
	if err := os.WriteFile(st.RegistryPath(), []byte(`{"last_updated": "2024-01-01T00:00:00"}`), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	_, err := st.LoadRegistry()
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError for missing members map, got %v", err)
	}
}

func TestRegistryCountsRecomputed(t *testing.T) {
	st := newTestStore(t)

	// Persisted counters are deliberately wrong; loading must recompute
	// them from the members map.
	raw := `{
		"total_members": 99,
		"total_filings": 99,
		"members": {
			"Doe, Jane_CA12": {
				"name": "Doe, Jane",
				"office": "CA12",
				"filings": [
					{"pdf_id": "1", "pdf_link": "https://example.com/1.pdf"},
					{"pdf_id": "2", "pdf_link": "https://example.com/2.pdf"}
				]
			}
		}
	}`
	if err := os.WriteFile(st.RegistryPath(), []byte(raw), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	reg, err := st.LoadRegistry()
	if err != nil {
		t.Fatalf("LoadRegistry failed: %v", err)
	}
	if reg.TotalMembers != 1 {
		t.Errorf("TotalMembers = %d, want 1", reg.TotalMembers)
	}
	if reg.TotalFilings != 2 {
		t.Errorf("TotalFilings = %d, want 2", reg.TotalFilings)
	}
}

func TestLoadLedgerBackfillsSummary(t *testing.T) {
	st := newTestStore(t)

	raw := `{
		"pending_processing": [
			{"pdf_id": "1", "pdf_url": "https://example.com/1.pdf"}
		],
		"processed_filings": {
			"2": {"pdf_url": "https://example.com/2.pdf", "transactions": [], "parsed_at": "2024-01-01T00:00:00"}
		}
	}`
	if err := os.WriteFile(st.LedgerPath(), []byte(raw), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	led, err := st.LoadLedger()
	if err != nil {
		t.Fatalf("LoadLedger failed: %v", err)
	}
	if led.Summary.PendingPDFs != 1 || led.Summary.ProcessedPDFs != 1 || led.Summary.TotalPDFs != 2 {
		t.Errorf("summary = %+v, want pending=1 processed=1 total=2", led.Summary)
	}
}

func TestAtomicWriteFailureLeavesFileIntact(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.json")

	if err := atomicWriteJSON(path, map[string]string{"state": "committed"}); err != nil {
		t.Fatalf("initial write failed: %v", err)
	}
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}

	// Functions cannot be marshalled, so this write fails before any byte
	// reaches the target file.
	if err := atomicWriteJSON(path, func() {}); err == nil {
		t.Fatal("expected write of unmarshalable value to fail")
	}

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read after failed write: %v", err)
	}
	if string(before) != string(after) {
		t.Error("failed write modified the previously committed file")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("temp artifacts left behind: %d entries in dir", len(entries))
	}
}

func TestAddPendingFilingIdempotent(t *testing.T) {
	st := newTestStore(t)

	entry := types.PendingFiling{
		MemberName: "Doe, Jane",
		PDFID:      "20030461",
		PDFURL:     "https://example.com/20030461.pdf",
		FilingType: "PTR Original",
		Year:       "2024",
	}

	added, err := st.AddPendingFiling(entry)
	if err != nil {
		t.Fatalf("AddPendingFiling failed: %v", err)
	}
	if !added {
		t.Error("first insert should report added")
	}

	added, err = st.AddPendingFiling(entry)
	if err != nil {
		t.Fatalf("AddPendingFiling failed: %v", err)
	}
	if added {
		t.Error("duplicate insert should report not added")
	}

	pending, err := st.PendingFilings()
	if err != nil {
		t.Fatalf("PendingFilings failed: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("queue length = %d, want 1", len(pending))
	}
	if pending[0].DiscoveredAt == "" {
		t.Error("DiscoveredAt should be stamped on insert")
	}
}

func TestMarkFilingProcessed(t *testing.T) {
	st := newTestStore(t)
	link := "https://example.com/20030461.pdf"

	seedRegistry(t, st, types.Filing{
		PDFID:            "20030461",
		PDFLink:          link,
		ProcessingStatus: types.StatusPending,
	})
	if _, err := st.AddPendingFiling(types.PendingFiling{PDFID: "20030461", PDFURL: link}); err != nil {
		t.Fatalf("AddPendingFiling failed: %v", err)
	}

	result := types.ProcessedResult{
		PDFURL:                link,
		StockTransactionCount: 2,
		Transactions: []types.Transaction{
			{Asset: "AAPL Inc", Ticker: "AAPL"},
			{Asset: "MSFT Corp", Ticker: "MSFT"},
		},
		ParsedAt: "2024-01-05T00:00:00",
	}
	if err := st.MarkFilingProcessed(link, result); err != nil {
		t.Fatalf("MarkFilingProcessed failed: %v", err)
	}

	reg, err := st.LoadRegistry()
	if err != nil {
		t.Fatalf("LoadRegistry failed: %v", err)
	}
	filing := reg.Members["Doe, Jane_CA12"].Filings[0]
	if filing.ProcessingStatus != types.StatusProcessed {
		t.Errorf("status = %q, want processed", filing.ProcessingStatus)
	}
	if filing.HasStockTransactions == nil || !*filing.HasStockTransactions {
		t.Error("HasStockTransactions should be true")
	}
	if filing.ProcessedAt == "" {
		t.Error("ProcessedAt should be stamped")
	}

	led, err := st.LoadLedger()
	if err != nil {
		t.Fatalf("LoadLedger failed: %v", err)
	}
	if len(led.PendingProcessing) != 0 {
		t.Errorf("queue length = %d, want 0", len(led.PendingProcessing))
	}
	stored, ok := led.ProcessedFilings["20030461"]
	if !ok {
		t.Fatal("result should be keyed by pdf_id")
	}
	if stored.StockTransactionCount != 2 {
		t.Errorf("StockTransactionCount = %d, want 2", stored.StockTransactionCount)
	}
}

func TestMarkFilingProcessedUnknownLink(t *testing.T) {
	st := newTestStore(t)
	link := "https://example.com/999.pdf"

	if _, err := st.AddPendingFiling(types.PendingFiling{PDFID: "999", PDFURL: link}); err != nil {
		t.Fatalf("AddPendingFiling failed: %v", err)
	}

	// No registry filing matches; the ledger update must still land.
	result := types.ProcessedResult{PDFURL: link, ParsedAt: "2024-01-05T00:00:00"}
	if err := st.MarkFilingProcessed(link, result); err != nil {
		t.Fatalf("MarkFilingProcessed failed: %v", err)
	}

	led, err := st.LoadLedger()
	if err != nil {
		t.Fatalf("LoadLedger failed: %v", err)
	}
	if len(led.PendingProcessing) != 0 {
		t.Error("pending entry should be removed even without a registry match")
	}
	if _, ok := led.ProcessedFilings["999"]; !ok {
		t.Error("result should be recorded even without a registry match")
	}
}

func TestMarkFilingErrorTransient(t *testing.T) {
	st := newTestStore(t)
	link := "https://example.com/20030461.pdf"

	seedRegistry(t, st, types.Filing{PDFID: "20030461", PDFLink: link, ProcessingStatus: types.StatusPending})
	if _, err := st.AddPendingFiling(types.PendingFiling{PDFID: "20030461", PDFURL: link}); err != nil {
		t.Fatalf("AddPendingFiling failed: %v", err)
	}

	if err := st.MarkFilingError(link, "connection reset", false); err != nil {
		t.Fatalf("MarkFilingError failed: %v", err)
	}

	led, err := st.LoadLedger()
	if err != nil {
		t.Fatalf("LoadLedger failed: %v", err)
	}
	if len(led.PendingProcessing) != 1 {
		t.Error("transient error must leave the filing queued")
	}
	if len(led.ProcessedFilings) != 0 {
		t.Error("transient error must not write a terminal result")
	}

	reg, err := st.LoadRegistry()
	if err != nil {
		t.Fatalf("LoadRegistry failed: %v", err)
	}
	if got := reg.Members["Doe, Jane_CA12"].Filings[0].ProcessingStatus; got != types.StatusPending {
		t.Errorf("status = %q, want pending after transient error", got)
	}
}

func TestMarkFilingErrorPermanent(t *testing.T) {
	st := newTestStore(t)
	link := "https://example.com/20030461.pdf"

	seedRegistry(t, st, types.Filing{PDFID: "20030461", PDFLink: link, ProcessingStatus: types.StatusPending})
	if _, err := st.AddPendingFiling(types.PendingFiling{PDFID: "20030461", PDFURL: link}); err != nil {
		t.Fatalf("AddPendingFiling failed: %v", err)
	}

	if err := st.MarkFilingError(link, "invalid pdf structure", true); err != nil {
		t.Fatalf("MarkFilingError failed: %v", err)
	}

	led, err := st.LoadLedger()
	if err != nil {
		t.Fatalf("LoadLedger failed: %v", err)
	}
	if len(led.PendingProcessing) != 0 {
		t.Error("permanent error must dequeue the filing")
	}
	stored, ok := led.ProcessedFilings["20030461"]
	if !ok {
		t.Fatal("permanent error must record a terminal result")
	}
	if !stored.Permanent || stored.Error != "invalid pdf structure" {
		t.Errorf("stored result = %+v, want permanent error", stored)
	}

	reg, err := st.LoadRegistry()
	if err != nil {
		t.Fatalf("LoadRegistry failed: %v", err)
	}
	filing := reg.Members["Doe, Jane_CA12"].Filings[0]
	if filing.ProcessingStatus != types.StatusFailed {
		t.Errorf("status = %q, want failed", filing.ProcessingStatus)
	}
	if filing.Error != "invalid pdf structure" {
		t.Errorf("error = %q, want recorded message", filing.Error)
	}
}

func TestPDFIDFromLink(t *testing.T) {
	tests := []struct {
		link string
		want string
	}{
		{"https://example.com/public_disc/ptr-pdfs/2024/20030461.pdf", "20030461"},
		{"https://example.com/20030461", "20030461"},
		{"20030461.pdf", "20030461"},
	}
	for _, tt := range tests {
		if got := PDFIDFromLink(tt.link); got != tt.want {
			t.Errorf("PDFIDFromLink(%q) = %q, want %q", tt.link, got, tt.want)
		}
	}
}

func TestDeleteFiling(t *testing.T) {
	st := newTestStore(t)
	link := "https://example.com/20030461.pdf"

	seedRegistry(t, st, types.Filing{
		PDFID:            "20030461",
		PDFLink:          link,
		ProcessingStatus: types.StatusProcessed,
	})
	led, err := st.LoadLedger()
	if err != nil {
		t.Fatalf("LoadLedger failed: %v", err)
	}
	led.ProcessedFilings["20030461"] = types.ProcessedResult{PDFURL: link, StockTransactionCount: 3}
	if err := st.SaveLedger(led); err != nil {
		t.Fatalf("SaveLedger failed: %v", err)
	}

	summary, err := st.DeleteFiling("20030461")
	if err != nil {
		t.Fatalf("DeleteFiling failed: %v", err)
	}
	if !summary.RemovedResult || summary.TransactionCount != 3 {
		t.Errorf("summary = %+v, want removed result with 3 transactions", summary)
	}
	if summary.RegistryBackup == "" || summary.LedgerBackup == "" {
		t.Error("backups should be created for existing files")
	}
	if _, err := os.Stat(summary.RegistryBackup); err != nil {
		t.Errorf("registry backup missing: %v", err)
	}

	if _, _, err := st.FindFilingByID("20030461"); !errors.Is(err, ErrFilingNotFound) {
		t.Errorf("expected ErrFilingNotFound after delete, got %v", err)
	}
	led, err = st.LoadLedger()
	if err != nil {
		t.Fatalf("LoadLedger failed: %v", err)
	}
	if len(led.ProcessedFilings) != 0 {
		t.Error("ledger result should be removed")
	}
}

func TestDeleteFilingNotFound(t *testing.T) {
	st := newTestStore(t)
	seedRegistry(t, st, types.Filing{PDFID: "1", PDFLink: "https://example.com/1.pdf"})

	if _, err := st.DeleteFiling("nope"); !errors.Is(err, ErrFilingNotFound) {
		t.Errorf("expected ErrFilingNotFound, got %v", err)
	}
}
