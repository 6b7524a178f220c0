/*
Package status is the single authority for interpreting and changing a
filing's lifecycle state. New filings start pending, and processed/failed are
terminal; a transient processing error never moves a filing out of pending.
*/
package status

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jcarver/ptrwatch/internal/store"
	"github.com/jcarver/ptrwatch/internal/types"
)

// Manager applies lifecycle rules on top of the record store.
type Manager struct {
	store *store.Store
	log   zerolog.Logger
}

// NewManager creates a status manager backed by st.
func NewManager(st *store.Store, log zerolog.Logger) *Manager {
	return &Manager{store: st, log: log}
}

// Summary counts filings per recognized state. NoStatus collects filings
// whose persisted status string is not a recognized value (legacy absence is
// counted under NoStatus as well).
type Summary struct {
	Pending   int
	Processed int
	Failed    int
	NoStatus  int
}

// IdentifyPendingFilings scans the registry and returns every filing whose
// status is pending or absent, with enough denormalized context for the
// pipeline to process it without a second registry read.
func (m *Manager) IdentifyPendingFilings() ([]types.PendingInfo, error) {
	reg, err := m.store.LoadRegistry()
	if err != nil {
		return nil, err
	}

	var pending []types.PendingInfo
	for key, member := range reg.Members {
		for _, filing := range member.Filings {
			if !filing.ProcessingStatus.NeedsProcessing() {
				continue
			}
			pending = append(pending, types.PendingInfo{
				MemberKey:  key,
				MemberName: member.Name,
				PDFURL:     filing.PDFLink,
				PDFID:      filing.PDFID,
				FilingType: filing.FilingType,
				Year:       filing.Year,
			})
		}
	}

	m.log.Info().Int("count", len(pending)).Msg("identified pending filings")
	return pending, nil
}

// UpdateStatus applies a new status to the filing with the given pdf_id,
// stamping the change time and attaching errMessage when set. It returns
// store.ErrFilingNotFound when no filing matches.
func (m *Manager) UpdateStatus(pdfID string, newStatus types.FilingStatus, errMessage string) error {
	if !newStatus.Valid() {
		return fmt.Errorf("invalid status %q", newStatus)
	}

	reg, err := m.store.LoadRegistry()
	if err != nil {
		return err
	}

	updated := false
	for _, member := range reg.Members {
		for i := range member.Filings {
			if member.Filings[i].PDFID != pdfID {
				continue
			}
			member.Filings[i].ProcessingStatus = newStatus
			member.Filings[i].StatusUpdated = types.Timestamp(time.Now())
			if errMessage != "" {
				member.Filings[i].Error = errMessage
			}
			updated = true
			break
		}
		if updated {
			break
		}
	}

	if !updated {
		return fmt.Errorf("%w: pdf_id %s", store.ErrFilingNotFound, pdfID)
	}

	if err := m.store.SaveRegistry(reg); err != nil {
		return err
	}
	m.log.Info().Str("pdf_id", pdfID).Str("status", string(newStatus)).Msg("filing status updated")
	return nil
}

// GetStatus returns the current status of a filing, or ErrFilingNotFound.
// Legacy filings with no status report StatusPending.
func (m *Manager) GetStatus(pdfID string) (types.FilingStatus, error) {
	reg, err := m.store.LoadRegistry()
	if err != nil {
		return "", err
	}

	for _, member := range reg.Members {
		for _, filing := range member.Filings {
			if filing.PDFID == pdfID {
				if filing.ProcessingStatus == "" {
					return types.StatusPending, nil
				}
				return filing.ProcessingStatus, nil
			}
		}
	}
	return "", fmt.Errorf("%w: pdf_id %s", store.ErrFilingNotFound, pdfID)
}

// GetStatusSummary counts filings per state across the registry.
func (m *Manager) GetStatusSummary() (Summary, error) {
	reg, err := m.store.LoadRegistry()
	if err != nil {
		return Summary{}, err
	}

	var sum Summary
	for _, member := range reg.Members {
		for _, filing := range member.Filings {
			switch filing.ProcessingStatus {
			case types.StatusPending:
				sum.Pending++
			case types.StatusProcessed:
				sum.Processed++
			case types.StatusFailed:
				sum.Failed++
			default:
				sum.NoStatus++
			}
		}
	}
	return sum, nil
}

// FailedFilings returns the pdf_ids of every filing in the failed state.
func (m *Manager) FailedFilings() ([]string, error) {
	reg, err := m.store.LoadRegistry()
	if err != nil {
		return nil, err
	}

	var failed []string
	for _, member := range reg.Members {
		for _, filing := range member.Filings {
			if filing.ProcessingStatus == types.StatusFailed {
				failed = append(failed, filing.PDFID)
			}
		}
	}
	return failed, nil
}

// MarkFilingsAsPending backfills the pending status onto filings that have no
// status at all. Filings that already carry a status are never touched; this
// is a one-way promotion for legacy records. It returns the number updated.
func (m *Manager) MarkFilingsAsPending(pdfLinks []string) (int, error) {
	linkSet := make(map[string]struct{}, len(pdfLinks))
	for _, link := range pdfLinks {
		linkSet[link] = struct{}{}
	}

	reg, err := m.store.LoadRegistry()
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, member := range reg.Members {
		for i := range member.Filings {
			filing := &member.Filings[i]
			if _, ok := linkSet[filing.PDFLink]; !ok {
				continue
			}
			if filing.ProcessingStatus != "" {
				continue
			}
			filing.ProcessingStatus = types.StatusPending
			filing.StatusUpdated = types.Timestamp(time.Now())
			updated++
		}
	}

	if updated > 0 {
		if err := m.store.SaveRegistry(reg); err != nil {
			return 0, err
		}
		m.log.Info().Int("count", updated).Msg("marked legacy filings as pending")
	}
	return updated, nil
}
