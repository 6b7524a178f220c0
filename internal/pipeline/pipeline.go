/*
Package pipeline drives one monitor run: discover filings, promote them into
the pending queue, then drain a bounded batch through download, extraction
and persistence. Items that fail transiently stay queued for the next run;
items that fail permanently are dequeued and never retried.
*/
package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jcarver/ptrwatch/internal/ai"
	"github.com/jcarver/ptrwatch/internal/config"
	"github.com/jcarver/ptrwatch/internal/extract"
	"github.com/jcarver/ptrwatch/internal/fetch"
	"github.com/jcarver/ptrwatch/internal/notify"
	"github.com/jcarver/ptrwatch/internal/scraper"
	"github.com/jcarver/ptrwatch/internal/status"
	"github.com/jcarver/ptrwatch/internal/store"
	"github.com/jcarver/ptrwatch/internal/types"
)

// DocumentFetcher acquires filing documents into run-scoped temp storage.
type DocumentFetcher interface {
	Download(pdfURL, filename string) (string, error)
	Cleanup()
}

// PageExtractor converts a downloaded document into per-page line sequences.
type PageExtractor func(path string) ([][]string, error)

// Pusher delivers push notifications.
type Pusher interface {
	Send(req notify.Request) notify.Response
}

// AnalyzeFunc produces an optional AI analysis for a filing's transactions.
type AnalyzeFunc func(memberName string, transactions []types.Transaction) *ai.Analysis

// RunSummary is the outcome of one pipeline run.
type RunSummary struct {
	RunID            string
	Scrape           *scraper.Summary
	QueuedNew        int
	PendingFound     int
	Processed        int
	Successful       int
	Failed           int
	PendingRemaining int
}

// Runner coordinates one run over the shared store.
type Runner struct {
	cfg     config.Config
	store   *store.Store
	status  *status.Manager
	scraper *scraper.Scraper
	fetcher DocumentFetcher
	pages   PageExtractor
	pusher  Pusher
	email   *notify.EmailSender
	analyze AnalyzeFunc
	log     zerolog.Logger
}

// New wires a Runner with its production collaborators.
func New(cfg config.Config, st *store.Store, log zerolog.Logger) *Runner {
	r := &Runner{
		cfg:     cfg,
		store:   st,
		status:  status.NewManager(st, log),
		scraper: scraper.New(cfg.BaseURL, time.Duration(cfg.MinInterval)*time.Hour, st, log),
		fetcher: fetch.New(log),
		pages:   fetch.ExtractPages,
		pusher:  notify.NewBarkClient(notify.BarkConfig{APIKey: cfg.BarkAPIKey, BaseURL: cfg.BarkBaseURL, Icon: cfg.BarkIcon}, log),
		email: notify.NewEmailSender(notify.EmailConfig{
			SMTPServer: cfg.SMTPServer,
			SMTPPort:   cfg.SMTPPort,
			SMTPUser:   cfg.SMTPUser,
			SMTPPass:   cfg.SMTPPass,
			FromEmail:  cfg.FromEmail,
			ToEmail:    cfg.ToEmail,
			Enabled:    cfg.EmailEnabled(),
		}, log),
		log: log,
	}

	if cfg.GeminiAPIKey != "" {
		r.analyze = func(memberName string, transactions []types.Transaction) *ai.Analysis {
			analysis, err := ai.GenerateSummary(memberName, transactions, cfg.GeminiAPIKey, cfg.GeminiModel)
			if err != nil {
				log.Warn().Str("member", memberName).Err(err).Msg("AI analysis failed")
				return nil
			}
			return analysis
		}
	}

	return r
}

// Run executes one full pass: discovery, queue update and batch processing.
// It fails outright only on store-level validation or I/O errors; per-item
// failures are counted and reported at the end.
func (r *Runner) Run(forceScrape bool) (*RunSummary, error) {
	summary := &RunSummary{RunID: uuid.New().String()}
	log := r.log.With().Str("run_id", summary.RunID).Logger()

	log.Info().Msg("starting run")

	scrapeResult, err := r.scraper.UpdateData(forceScrape, r.cfg.FilingYear)
	if err != nil {
		var vErr *store.ValidationError
		if errors.As(err, &vErr) {
			return nil, err
		}
		// Discovery is best-effort: a scrape failure must not block
		// processing of the existing queue.
		log.Error().Err(err).Msg("discovery failed, continuing with existing queue")
	} else {
		summary.Scrape = scrapeResult
	}

	queued, err := r.updateQueue()
	if err != nil {
		return nil, err
	}
	summary.QueuedNew = queued

	pending, err := r.status.IdentifyPendingFilings()
	if err != nil {
		return nil, err
	}
	summary.PendingFound = len(pending)

	if err := r.processPending(pending, summary, log); err != nil {
		return nil, err
	}

	remaining, err := r.store.PendingFilings()
	if err != nil {
		return nil, err
	}
	summary.PendingRemaining = len(remaining)

	notify.ReportRun(summary.Processed, summary.Successful, summary.Failed, summary.PendingRemaining, r.store.LedgerPath())
	log.Info().
		Int("processed", summary.Processed).
		Int("successful", summary.Successful).
		Int("failed", summary.Failed).
		Msg("run complete")

	return summary, nil
}

// Scrape runs discovery only, leaving the pending queue untouched.
func (r *Runner) Scrape(force bool) (*scraper.Summary, error) {
	return r.scraper.UpdateData(force, r.cfg.FilingYear)
}

// updateQueue backfills pending status onto legacy filings and inserts every
// pending filing into the processing queue. Insertion is idempotent, so
// re-running after a partial batch adds nothing twice.
func (r *Runner) updateQueue() (int, error) {
	pending, err := r.status.IdentifyPendingFilings()
	if err != nil {
		return 0, err
	}

	links := make([]string, 0, len(pending))
	for _, info := range pending {
		links = append(links, info.PDFURL)
	}
	if _, err := r.status.MarkFilingsAsPending(links); err != nil {
		return 0, err
	}

	added := 0
	for _, info := range pending {
		ok, err := r.store.AddPendingFiling(types.PendingFiling{
			MemberName: info.MemberName,
			PDFID:      info.PDFID,
			PDFURL:     info.PDFURL,
			FilingType: info.FilingType,
			Year:       info.Year,
		})
		if err != nil {
			return 0, err
		}
		if ok {
			added++
		}
	}

	if added > 0 {
		r.log.Info().Int("count", added).Msg("added filings to pending queue")
	}
	return added, nil
}

// processPending drains up to MaxFilesPerRun items, one document at a time.
func (r *Runner) processPending(pending []types.PendingInfo, summary *RunSummary, log zerolog.Logger) error {
	if len(pending) == 0 {
		log.Info().Msg("no pending filings to process")
		return nil
	}

	batch := pending
	if len(batch) > r.cfg.MaxFilesPerRun {
		batch = batch[:r.cfg.MaxFilesPerRun]
	}
	log.Info().Int("batch", len(batch)).Int("pending", len(pending)).Msg("processing pending filings")

	defer r.fetcher.Cleanup()

	var emailSections []string

	for _, info := range batch {
		itemLog := log.With().Str("pdf_id", info.PDFID).Str("member", info.MemberName).Logger()
		itemLog.Info().Msg("processing filing")

		section, err := r.processOne(info, summary, itemLog)
		if err != nil {
			return err
		}
		if section != "" {
			emailSections = append(emailSections, section)
		}
	}

	if len(emailSections) > 0 {
		subject := fmt.Sprintf("Congressional trading: %d filing(s) with transactions", len(emailSections))
		body := ""
		for i, section := range emailSections {
			if i > 0 {
				body += "\n----------------------------------------\n\n"
			}
			body += section
		}
		if err := r.email.Send(subject, body); err != nil {
			log.Warn().Err(err).Msg("email report failed")
		}
	}

	return nil
}

// processOne runs one filing through download, extraction and persistence.
// The returned section is non-empty when the filing disclosed transactions
// and should appear in the email report. Only store-level errors are
// returned; item-level failures are classified and recorded.
func (r *Runner) processOne(info types.PendingInfo, summary *RunSummary, log zerolog.Logger) (string, error) {
	path, err := r.fetcher.Download(info.PDFURL, info.PDFID+".pdf")
	if err != nil {
		log.Warn().Err(err).Msg("download failed, filing stays queued")
		return "", r.store.MarkFilingError(info.PDFURL, "Failed to download PDF", false)
	}

	pages, err := r.pages(path)
	if err != nil {
		return "", r.recordFailure(info, err.Error(), summary, log)
	}

	result := extract.ExtractFilingData(info.PDFURL, pages)
	if result.Error != "" {
		return "", r.recordFailure(info, result.Error, summary, log)
	}

	if err := r.store.MarkFilingProcessed(info.PDFURL, result); err != nil {
		return "", err
	}
	summary.Processed++
	summary.Successful++
	log.Info().Int("transactions", result.StockTransactionCount).Msg("filing processed")

	if result.StockTransactionCount == 0 {
		return "", nil
	}

	var analysis *ai.Analysis
	if r.analyze != nil {
		analysis = r.analyze(info.MemberName, result.Transactions)
	}

	if resp := r.pusher.Send(notify.BuildFilingAlert(info.MemberName, result, analysis)); !resp.Success {
		log.Warn().Str("error", resp.Error).Msg("push notification failed")
	}

	return notify.FormatFilingReport(info.MemberName, result, analysis), nil
}

func (r *Runner) recordFailure(info types.PendingInfo, message string, summary *RunSummary, log zerolog.Logger) error {
	permanent := IsPermanentError(message, r.cfg.PermanentErrorPatterns)
	log.Warn().Str("error", message).Bool("permanent", permanent).Msg("extraction failed")

	if err := r.store.MarkFilingError(info.PDFURL, message, permanent); err != nil {
		return err
	}
	if permanent {
		summary.Processed++
		summary.Failed++
	}
	return nil
}
