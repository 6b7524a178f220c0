package notify

import (
	"fmt"
	"strings"

	"github.com/jcarver/ptrwatch/internal/ai"
	"github.com/jcarver/ptrwatch/internal/types"
)

// BuildFilingAlert assembles the push notification for one processed filing
// that disclosed transactions, including the Gemini analysis when available.
func BuildFilingAlert(memberName string, result types.ProcessedResult, analysis *ai.Analysis) Request {
	var body strings.Builder

	fmt.Fprintf(&body, "%d stock transaction(s) disclosed.\n", result.StockTransactionCount)

	shown := result.Transactions
	const maxShown = 5
	if len(shown) > maxShown {
		shown = shown[:maxShown]
	}
	for _, tx := range shown {
		fmt.Fprintf(&body, "%s %s (%s) %s\n", tx.TransactionType, tx.Asset, tx.Ticker, tx.Amount)
	}
	if len(result.Transactions) > maxShown {
		fmt.Fprintf(&body, "... and %d more\n", len(result.Transactions)-maxShown)
	}

	if analysis != nil && len(analysis.Summary) > 0 {
		body.WriteString("\nAnalysis:\n")
		for _, point := range analysis.Summary {
			fmt.Fprintf(&body, "- %s\n", point)
		}
	}

	return Request{
		Title:    fmt.Sprintf("New PTR filing: %s", memberName),
		Subtitle: "Congressional Trading",
		Body:     body.String(),
		URL:      result.PDFURL,
	}
}

// FormatFilingReport renders the full detail of one processed filing for the
// email report.
func FormatFilingReport(memberName string, result types.ProcessedResult, analysis *ai.Analysis) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Member: %s\n", memberName)
	fmt.Fprintf(&sb, "URL:    %s\n", result.PDFURL)
	fmt.Fprintf(&sb, "Transactions: %d\n\n", result.StockTransactionCount)

	for i, tx := range result.Transactions {
		fmt.Fprintf(&sb, "%d. %s (%s)\n", i+1, tx.Asset, tx.Ticker)
		fmt.Fprintf(&sb, "   %s by %s on %s (notified %s): %s\n",
			tx.TransactionType, tx.Owner, tx.TransactionDate, tx.NotificationDate, tx.Amount)
	}

	if analysis != nil {
		if len(analysis.Summary) > 0 {
			sb.WriteString("\nAI Summary:\n")
			for _, point := range analysis.Summary {
				fmt.Fprintf(&sb, "\t- %s\n", point)
			}
		}
		if len(analysis.NotableActivity) > 0 {
			sb.WriteString("\nNotable Activity:\n")
			for _, obs := range analysis.NotableActivity {
				fmt.Fprintf(&sb, "\t- [%s] %s\n", obs.Category, obs.Details)
			}
		}
	}

	return sb.String()
}

// ReportRun prints the end-of-run summary to the console.
func ReportRun(processed, successful, failed, remaining int, ledgerPath string) {
	fmt.Println("\n===========================================")
	fmt.Printf("RUN COMPLETE: %d processed (%d successful, %d failed)\n", processed, successful, failed)
	if remaining > 0 {
		fmt.Printf("%d filing(s) remain queued for a future run.\n", remaining)
	}
	fmt.Println("===========================================")
	fmt.Printf("Ledger saved to %s.\n", ledgerPath)
}
