/*
Package extract turns the raw page text of a disclosure document into
structured securities-transaction records. The parser is a pipeline of small
heuristic passes over noisy, inconsistently formatted text: classify candidate
lines, widen to a short context window, pull out the ticker, asset name,
owner, dates and amount, then validate. It performs no I/O and keeps no state.
*/
package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jcarver/ptrwatch/internal/types"
)

// contextWindow is how many lines a transaction record may span: the
// candidate line plus two continuation lines for asset name and ticker.
const contextWindow = 3

// stockMarker tags stock-type assets; candidates without it anywhere in
// their context window are skipped (options, bonds and funds carry other tags).
const stockMarker = "[ST]"

var ownerCodes = map[string]string{
	"SP": "Spouse",
	"DC": "Dependent Child",
	"JT": "Joint",
}

var (
	tickerPattern     = regexp.MustCompile(`\(([A-Z0-9.]+)\)`)
	datePattern       = regexp.MustCompile(`\d{2}/\d{2}/\d{4}`)
	amountPattern     = regexp.MustCompile(`\$[\d,]+`)
	ownerPattern      = regexp.MustCompile(`^(SP|DC|JT)\s+(.+)`)
	bracketTagPattern = regexp.MustCompile(`\s*\[[A-Z]+\]\s*`)
	assetCharPattern  = regexp.MustCompile(`[^\w\s.\-&(),]`)
	spacePattern      = regexp.MustCompile(`\s+`)

	filingIDPattern = regexp.MustCompile(`Filing ID #(\d+)`)
	namePattern     = regexp.MustCompile(`Name: (.+?)(?:\n|Status:)`)
	districtPattern = regexp.MustCompile(`State/District: (.+?)(?:\n|$)`)
)

// Continuation lines are cut at the first date, dollar amount or signed
// amount when building the asset name.
var continuationCutoffs = []*regexp.Regexp{
	datePattern,
	regexp.MustCompile(`\$\d`),
	regexp.MustCompile(`\$\s*\d`),
	regexp.MustCompile(`-\s*\$`),
}

// Disclosed amounts above $1,000 are bucketed into the standard ranges.
var amountRanges = []struct {
	bound int64
	label string
}{
	{15000, "$1,001 - $15,000"},
	{50000, "$15,001 - $50,000"},
	{100000, "$50,001 - $100,000"},
	{250000, "$100,001 - $250,000"},
	{500000, "$250,001 - $500,000"},
	{1000000, "$500,001 - $1,000,000"},
	{5000000, "$1,000,001 - $5,000,000"},
	{25000000, "$5,000,001 - $25,000,000"},
	{50000000, "$25,000,001 - $50,000,000"},
}

const overMaxLabel = "Over $50,000,000"

// ExtractFilingData runs the full extraction over a document's pages. It
// never fails: any internal error is captured into the result so that one
// malformed document cannot abort a batch.
func ExtractFilingData(pdfURL string, pages [][]string) (result types.ProcessedResult) {
	result = types.ProcessedResult{
		PDFURL:       pdfURL,
		Transactions: []types.Transaction{},
		ParsedAt:     types.Timestamp(time.Now()),
	}

	defer func() {
		if r := recover(); r != nil {
			result.Error = fmt.Sprintf("extraction panic: %v", r)
			result.Transactions = []types.Transaction{}
			result.StockTransactionCount = 0
		}
	}()

	if len(pages) > 0 {
		result.MemberInfo = ParseMemberInfo(strings.Join(pages[0], "\n"))
	}

	txs := ExtractTransactions(pages)
	result.Transactions = txs
	result.StockTransactionCount = len(txs)
	return result
}

// ExtractTransactions parses every page and concatenates the results.
func ExtractTransactions(pages [][]string) []types.Transaction {
	var all []types.Transaction
	for _, lines := range pages {
		all = append(all, extractFromLines(lines)...)
	}
	return all
}

// ParseMemberInfo pulls the filing metadata from the first page text using
// fixed label anchors. Missing fields are left empty, never an error.
func ParseMemberInfo(text string) types.MemberInfo {
	var info types.MemberInfo

	if m := filingIDPattern.FindStringSubmatch(text); m != nil {
		info.FilingID = m[1]
	}
	if m := namePattern.FindStringSubmatch(text); m != nil {
		info.Name = strings.TrimSpace(m[1])
	}
	if m := districtPattern.FindStringSubmatch(text); m != nil {
		info.District = strings.TrimSpace(m[1])
	}
	return info
}

func extractFromLines(lines []string) []types.Transaction {
	var txs []types.Transaction
	for i, line := range lines {
		if !isTransactionLine(line) {
			continue
		}
		ctx := contextLines(lines, i)
		if !isStockTransaction(line, ctx) {
			continue
		}
		if tx, ok := parseTransactionLine(line, ctx); ok {
			txs = append(txs, tx)
		}
	}
	return txs
}

// isTransactionLine marks a line as a candidate when it carries a purchase or
// sale marker, a dollar sign and at least one digit.
func isTransactionLine(line string) bool {
	if !strings.Contains(line, "P ") && !strings.Contains(line, "S ") {
		return false
	}
	if !strings.Contains(line, "$") {
		return false
	}
	return strings.ContainsFunc(line, func(r rune) bool { return r >= '0' && r <= '9' })
}

// contextLines returns the candidate line plus up to two following lines;
// multi-line filings routinely continue the asset name and ticker there.
func contextLines(lines []string, index int) []string {
	end := index + contextWindow
	if end > len(lines) {
		end = len(lines)
	}
	return lines[index:end]
}

func isStockTransaction(line string, ctx []string) bool {
	if strings.Contains(line, stockMarker) {
		return true
	}
	for _, c := range ctx {
		if strings.Contains(c, stockMarker) {
			return true
		}
	}
	return false
}

// extractOwnerCode splits a recognized two-letter ownership prefix off the
// line. Absence of a prefix means the filer holds the asset directly.
func extractOwnerCode(line string) (code, rest string) {
	if m := ownerPattern.FindStringSubmatch(line); m != nil {
		return m[1], m[2]
	}
	return "", line
}

func transactionType(line string) types.TransactionType {
	switch {
	case strings.Contains(line, " P "):
		return types.TypePurchase
	case strings.Contains(line, " S "):
		return types.TypeSale
	}
	return types.TypeUnknown
}

// extractAssetInfo finds the ticker in the context window and assembles the
// asset name from the text preceding each line's cutoff point. A candidate
// without a parenthesized ticker anywhere in its window yields nothing.
func extractAssetInfo(workingLine string, ctx []string) (ticker, asset string) {
	window := make([]string, len(ctx))
	copy(window, ctx)
	if len(window) > 0 {
		window[0] = workingLine
	}

	tickerIndex := -1
	for i, line := range window {
		if m := tickerPattern.FindStringSubmatch(line); m != nil {
			ticker = m[1]
			tickerIndex = i
			break
		}
	}
	if ticker == "" {
		return "", ""
	}

	var parts []string
	for j := 0; j < tickerIndex; j++ {
		text := window[j]
		if j == 0 {
			// The candidate line is cut at the first transaction marker.
			for _, marker := range []string{"P ", "S "} {
				if idx := strings.Index(text, marker); idx != -1 {
					text = text[:idx]
					break
				}
			}
		} else {
			for _, pattern := range continuationCutoffs {
				if loc := pattern.FindStringIndex(text); loc != nil {
					text = text[:loc[0]]
					break
				}
			}
		}
		parts = append(parts, strings.TrimSpace(text))
	}

	tickerLine := window[tickerIndex]
	if idx := strings.Index(tickerLine, "("+ticker+")"); idx != -1 {
		tickerLine = tickerLine[:idx]
	}
	parts = append(parts, strings.TrimSpace(tickerLine))

	return ticker, cleanAssetName(strings.Join(parts, " "))
}

// cleanAssetName normalizes an assembled asset name: bracketed tag
// annotations go first, then characters outside the conservative allowed set,
// then whitespace runs collapse to single spaces.
func cleanAssetName(name string) string {
	if name == "" {
		return ""
	}
	cleaned := bracketTagPattern.ReplaceAllString(name, " ")
	cleaned = assetCharPattern.ReplaceAllString(cleaned, " ")
	cleaned = spacePattern.ReplaceAllString(cleaned, " ")
	return strings.TrimSpace(cleaned)
}

func extractDates(line string) []string {
	return datePattern.FindAllString(line, -1)
}

// categorizeAmount finds the first dollar token and maps it into the standard
// disclosure ranges. Sub-$1,000 values keep their exact amount, values above
// every range map to the open-ended top label, and an unparsable token is
// returned verbatim.
func categorizeAmount(line string) string {
	token := amountPattern.FindString(line)
	if token == "" {
		return ""
	}

	raw := strings.ReplaceAll(strings.TrimPrefix(token, "$"), ",", "")
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return token
	}

	if value < 1000 {
		return fmt.Sprintf("$%d", value)
	}
	for _, r := range amountRanges {
		if value <= r.bound {
			return r.label
		}
	}
	return overMaxLabel
}

// parseTransactionLine extracts one transaction from a candidate line and its
// context window. Records missing an asset name, a date pair or an amount are
// discarded whole; no partial records are emitted.
func parseTransactionLine(line string, ctx []string) (types.Transaction, bool) {
	ownerCode, workingLine := extractOwnerCode(line)

	ticker, asset := extractAssetInfo(workingLine, ctx)
	if ticker == "" {
		return types.Transaction{}, false
	}

	dates := extractDates(line)
	amount := categorizeAmount(line)

	if asset == "" || len(dates) < 2 || amount == "" {
		return types.Transaction{}, false
	}

	owner, ok := ownerCodes[ownerCode]
	if !ok {
		owner = "Self"
	}

	return types.Transaction{
		Asset:            asset,
		Ticker:           ticker,
		Owner:            owner,
		OwnerCode:        ownerCode,
		TransactionType:  transactionType(workingLine),
		TransactionDate:  dates[0],
		NotificationDate: dates[1],
		Amount:           amount,
	}, true
}
