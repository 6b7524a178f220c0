package store

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/jcarver/ptrwatch/internal/types"
)

// ProcessedListing is one row of the operator-facing processed-filings view.
type ProcessedListing struct {
	PDFID       string
	MemberName  string
	MemberKey   string
	Year        string
	FilingType  string
	ProcessedAt string
	PDFURL      string
	HasResult   bool
}

// DeletionSummary describes what a DeleteFiling call removed.
type DeletionSummary struct {
	PDFID            string
	MemberName       string
	PDFURL           string
	RemovedResult    bool
	RemovedPending   bool
	RegistryBackup   string
	LedgerBackup     string
	TransactionCount int
}

// FindFilingByID locates a filing by pdf_id across the registry.
func (s *Store) FindFilingByID(pdfID string) (string, *types.Filing, error) {
	reg, err := s.LoadRegistry()
	if err != nil {
		return "", nil, err
	}
	for key, member := range reg.Members {
		for i := range member.Filings {
			if member.Filings[i].PDFID == pdfID {
				return key, &member.Filings[i], nil
			}
		}
	}
	return "", nil, fmt.Errorf("%w: pdf_id %s", ErrFilingNotFound, pdfID)
}

// ListProcessedFilings lists processed registry filings, newest first,
// optionally filtered by a case-insensitive member name substring.
func (s *Store) ListProcessedFilings(memberFilter string) ([]ProcessedListing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, err := s.loadRegistry()
	if err != nil {
		return nil, err
	}
	led, err := s.loadLedger()
	if err != nil {
		return nil, err
	}

	var listings []ProcessedListing
	for key, member := range reg.Members {
		if memberFilter != "" && !strings.Contains(strings.ToLower(member.Name), strings.ToLower(memberFilter)) {
			continue
		}
		for _, filing := range member.Filings {
			if filing.ProcessingStatus != types.StatusProcessed {
				continue
			}
			_, hasResult := led.ProcessedFilings[filing.PDFID]
			listings = append(listings, ProcessedListing{
				PDFID:       filing.PDFID,
				MemberName:  member.Name,
				MemberKey:   key,
				Year:        filing.Year,
				FilingType:  filing.FilingType,
				ProcessedAt: filing.ProcessedAt,
				PDFURL:      filing.PDFLink,
				HasResult:   hasResult,
			})
		}
	}

	sort.Slice(listings, func(i, j int) bool {
		return listings[i].ProcessedAt > listings[j].ProcessedAt
	})
	return listings, nil
}

// DeleteFiling removes a filing and every record derived from it: the
// registry entry, the ledger result and any pending queue entry. Both files
// are backed up with a timestamped suffix before the new state is written.
// Used by operators to re-run a filing end to end.
func (s *Store) DeleteFiling(pdfID string) (*DeletionSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, err := s.loadRegistry()
	if err != nil {
		return nil, err
	}
	led, err := s.loadLedger()
	if err != nil {
		return nil, err
	}

	summary := &DeletionSummary{PDFID: pdfID}

	found := false
	for key, member := range reg.Members {
		for i := range member.Filings {
			if member.Filings[i].PDFID != pdfID {
				continue
			}
			summary.MemberName = member.Name
			summary.PDFURL = member.Filings[i].PDFLink
			member.Filings = append(member.Filings[:i], member.Filings[i+1:]...)
			if len(member.Filings) == 0 {
				delete(reg.Members, key)
			}
			found = true
			break
		}
		if found {
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: pdf_id %s", ErrFilingNotFound, pdfID)
	}

	if result, ok := led.ProcessedFilings[pdfID]; ok {
		summary.RemovedResult = true
		summary.TransactionCount = result.StockTransactionCount
		delete(led.ProcessedFilings, pdfID)
	}

	before := len(led.PendingProcessing)
	led.PendingProcessing = removePending(led.PendingProcessing, summary.PDFURL)
	summary.RemovedPending = len(led.PendingProcessing) < before

	stamp := time.Now().Format("20060102_150405")
	summary.RegistryBackup, err = backupFile(s.registryPath, stamp)
	if err != nil {
		return nil, err
	}
	summary.LedgerBackup, err = backupFile(s.ledgerPath, stamp)
	if err != nil {
		return nil, err
	}

	if err := s.saveRegistry(reg); err != nil {
		return nil, err
	}
	if err := s.saveLedger(led); err != nil {
		return nil, err
	}
	return summary, nil
}

func backupFile(path, stamp string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read %s for backup: %w", path, err)
	}
	backupPath := strings.TrimSuffix(path, ".json") + ".backup." + stamp + ".json"
	if err := os.WriteFile(backupPath, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write backup %s: %w", backupPath, err)
	}
	return backupPath, nil
}
