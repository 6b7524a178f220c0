/*
Package store provides crash-safe access to the two JSON collections the
monitor persists: the member filing registry (congress_filings.json) and the
processing ledger (trading_data.json). Every write goes through a temp file
and an atomic rename, so a failure mid-write leaves the previously committed
file intact. The store assumes a single active writer process.
*/
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jcarver/ptrwatch/internal/types"
)

const (
	registryFileName = "congress_filings.json"
	ledgerFileName   = "trading_data.json"
)

// ErrFilingNotFound is returned when a lookup by pdf_id or pdf_link matches
// no filing in the registry.
var ErrFilingNotFound = errors.New("filing not found")

// ValidationError indicates a persisted file is structurally unusable.
// It aborts the run rather than letting the pipeline proceed on corrupt state.
type ValidationError struct {
	File   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid data in %s: %s", e.File, e.Reason)
}

// Store mediates all reads and writes of the registry and ledger files.
type Store struct {
	mu           sync.Mutex
	registryPath string
	ledgerPath   string
	log          zerolog.Logger
}

// New creates a Store rooted at dataDir, creating the directory if needed.
func New(dataDir string, log zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dataDir, err)
	}
	return &Store{
		registryPath: filepath.Join(dataDir, registryFileName),
		ledgerPath:   filepath.Join(dataDir, ledgerFileName),
		log:          log,
	}, nil
}

// RegistryPath returns the path of the registry file.
func (s *Store) RegistryPath() string { return s.registryPath }

// LedgerPath returns the path of the ledger file.
func (s *Store) LedgerPath() string { return s.ledgerPath }

// LoadRegistry reads the registry, returning an empty well-formed value when
// no file exists yet. Derived counters are recomputed, never trusted from disk.
func (s *Store) LoadRegistry() (*types.Registry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadRegistry()
}

func (s *Store) loadRegistry() (*types.Registry, error) {
	data, err := os.ReadFile(s.registryPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &types.Registry{Members: make(map[string]*types.Member)}, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", s.registryPath, err)
	}

	var reg types.Registry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, &ValidationError{File: registryFileName, Reason: err.Error()}
	}
	if reg.Members == nil {
		return nil, &ValidationError{File: registryFileName, Reason: "missing members map"}
	}

	recomputeRegistryCounts(&reg)
	return &reg, nil
}

// LoadLedger reads the ledger, backfilling any missing substructure with
// defaults so callers never see a nil collection.
func (s *Store) LoadLedger() (*types.Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLedger()
}

func (s *Store) loadLedger() (*types.Ledger, error) {
	data, err := os.ReadFile(s.ledgerPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &types.Ledger{
				PendingProcessing: []types.PendingFiling{},
				ProcessedFilings:  make(map[string]types.ProcessedResult),
			}, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", s.ledgerPath, err)
	}

	var led types.Ledger
	if err := json.Unmarshal(data, &led); err != nil {
		return nil, &ValidationError{File: ledgerFileName, Reason: err.Error()}
	}
	if led.PendingProcessing == nil {
		led.PendingProcessing = []types.PendingFiling{}
	}
	if led.ProcessedFilings == nil {
		led.ProcessedFilings = make(map[string]types.ProcessedResult)
	}

	recomputeLedgerCounts(&led)
	return &led, nil
}

// SaveRegistry recomputes the derived counters, stamps the update time and
// writes the registry atomically.
func (s *Store) SaveRegistry(reg *types.Registry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveRegistry(reg)
}

func (s *Store) saveRegistry(reg *types.Registry) error {
	if reg.Members == nil {
		return &ValidationError{File: registryFileName, Reason: "missing members map"}
	}
	recomputeRegistryCounts(reg)
	reg.LastUpdated = types.Timestamp(time.Now())
	return atomicWriteJSON(s.registryPath, reg)
}

// SaveLedger recomputes the summary counts, stamps the update time and writes
// the ledger atomically.
func (s *Store) SaveLedger(led *types.Ledger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLedger(led)
}

func (s *Store) saveLedger(led *types.Ledger) error {
	recomputeLedgerCounts(led)
	led.LastUpdated = types.Timestamp(time.Now())
	return atomicWriteJSON(s.ledgerPath, led)
}

// MarkFilingProcessed records a successful extraction: the registry filing is
// promoted to processed with a minimal success indicator, the pending queue
// entry is removed, and the full result is written into the ledger keyed by
// pdf_id. The ledger write proceeds even when no registry filing matches the
// link, since the ledger is the primary record of work performed.
func (s *Store) MarkFilingProcessed(pdfURL string, result types.ProcessedResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	led, err := s.loadLedger()
	if err != nil {
		return err
	}
	reg, err := s.loadRegistry()
	if err != nil {
		return err
	}

	now := types.Timestamp(time.Now())

	filing := findFilingByLink(reg, pdfURL)
	if filing != nil {
		filing.ProcessingStatus = types.StatusProcessed
		filing.ProcessedAt = now
		filing.StatusUpdated = now
		if result.Error == "" {
			has := result.StockTransactionCount > 0
			filing.HasStockTransactions = &has
		}
	} else {
		s.log.Warn().Str("pdf_url", pdfURL).Msg("processed filing not found in registry")
	}

	led.PendingProcessing = removePending(led.PendingProcessing, pdfURL)
	led.ProcessedFilings[PDFIDFromLink(pdfURL)] = result

	if filing != nil {
		if err := s.saveRegistry(reg); err != nil {
			return err
		}
	}
	return s.saveLedger(led)
}

// MarkFilingError records a failed attempt. Permanent failures are dequeued
// and written to the ledger as terminal error results, and the registry filing
// moves to failed. Transient failures leave the queue entry in place so a
// later run retries the filing.
func (s *Store) MarkFilingError(pdfURL, message string, permanent bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	led, err := s.loadLedger()
	if err != nil {
		return err
	}

	now := types.Timestamp(time.Now())

	if permanent {
		led.PendingProcessing = removePending(led.PendingProcessing, pdfURL)
		led.ProcessedFilings[PDFIDFromLink(pdfURL)] = types.ProcessedResult{
			PDFURL:       pdfURL,
			Transactions: []types.Transaction{},
			ParsedAt:     now,
			Error:        message,
			Permanent:    true,
		}

		reg, err := s.loadRegistry()
		if err != nil {
			return err
		}
		if filing := findFilingByLink(reg, pdfURL); filing != nil {
			filing.ProcessingStatus = types.StatusFailed
			filing.FailedAt = now
			filing.StatusUpdated = now
			filing.Error = message
			if err := s.saveRegistry(reg); err != nil {
				return err
			}
		}
	} else {
		s.log.Warn().Str("pdf_url", pdfURL).Str("error", message).Msg("transient error, filing stays queued")
	}

	return s.saveLedger(led)
}

// AddPendingFiling inserts a work item into the pending queue, keyed by
// pdf_url. It reports whether a new entry was actually added; inserting a
// link that is already queued is a no-op.
func (s *Store) AddPendingFiling(p types.PendingFiling) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	led, err := s.loadLedger()
	if err != nil {
		return false, err
	}

	for _, item := range led.PendingProcessing {
		if item.PDFURL == p.PDFURL {
			return false, nil
		}
	}

	if p.DiscoveredAt == "" {
		p.DiscoveredAt = types.Timestamp(time.Now())
	}
	led.PendingProcessing = append(led.PendingProcessing, p)

	if err := s.saveLedger(led); err != nil {
		return false, err
	}
	return true, nil
}

// PendingFilings returns the current pending queue.
func (s *Store) PendingFilings() ([]types.PendingFiling, error) {
	led, err := s.LoadLedger()
	if err != nil {
		return nil, err
	}
	return led.PendingProcessing, nil
}

// ExistingLinks returns the set of every pdf_link in the registry, used by
// discovery to de-duplicate scraped filings.
func (s *Store) ExistingLinks() (map[string]struct{}, error) {
	reg, err := s.LoadRegistry()
	if err != nil {
		return nil, err
	}

	links := make(map[string]struct{})
	for _, member := range reg.Members {
		for _, filing := range member.Filings {
			links[filing.PDFLink] = struct{}{}
		}
	}
	return links, nil
}

// LastUpdateTime returns the registry's last update stamp, if one is set and
// parseable.
func (s *Store) LastUpdateTime() (time.Time, bool) {
	reg, err := s.LoadRegistry()
	if err != nil || reg.LastUpdated == "" {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02T15:04:05", reg.LastUpdated)
	if err != nil {
		s.log.Warn().Str("last_updated", reg.LastUpdated).Msg("invalid last_updated timestamp")
		return time.Time{}, false
	}
	return t, true
}

// PDFIDFromLink derives the document identifier from a filing link: the last
// path segment with any .pdf suffix removed.
func PDFIDFromLink(link string) string {
	segments := strings.Split(link, "/")
	last := segments[len(segments)-1]
	return strings.TrimSuffix(last, ".pdf")
}

func findFilingByLink(reg *types.Registry, pdfURL string) *types.Filing {
	for _, member := range reg.Members {
		for i := range member.Filings {
			if member.Filings[i].PDFLink == pdfURL {
				return &member.Filings[i]
			}
		}
	}
	return nil
}

func removePending(queue []types.PendingFiling, pdfURL string) []types.PendingFiling {
	kept := queue[:0]
	for _, item := range queue {
		if item.PDFURL != pdfURL {
			kept = append(kept, item)
		}
	}
	return kept
}

func recomputeRegistryCounts(reg *types.Registry) {
	reg.TotalMembers = len(reg.Members)
	total := 0
	for _, member := range reg.Members {
		total += len(member.Filings)
	}
	reg.TotalFilings = total
}

func recomputeLedgerCounts(led *types.Ledger) {
	led.Summary.ProcessedPDFs = len(led.ProcessedFilings)
	led.Summary.PendingPDFs = len(led.PendingProcessing)
	led.Summary.TotalPDFs = led.Summary.ProcessedPDFs + led.Summary.PendingPDFs
}

// atomicWriteJSON marshals v and replaces path in one rename. Nothing is
// written to path unless the full payload was flushed to the temp file first;
// the temp artifact is removed on any failure.
func atomicWriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file %s: %w", tmpName, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
