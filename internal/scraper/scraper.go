/*
Package scraper discovers new disclosure filings from the House clerk's
financial disclosure search and merges them into the filing registry. The
registry de-duplicates strictly by pdf_link, so re-scraping the same year is
always safe.
*/
package scraper

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/html"

	"github.com/jcarver/ptrwatch/internal/store"
	"github.com/jcarver/ptrwatch/internal/types"
)

const (
	searchPath            = "/FinancialDisclosure/ViewMemberSearchResult"
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 4 * time.Second
)

// ScrapedFiling is one candidate filing row from the search results.
type ScrapedFiling struct {
	PDFID       string
	Name        string
	Office      string
	Year        string
	FilingType  string
	PDFLink     string
	ScrapedDate string
}

// Summary describes one discovery pass.
type Summary struct {
	TotalFilingsFound  int
	NewFilingsCount    int
	NewFilings         []ScrapedFiling
	MembersWithFilings int
	LastUpdated        string
	Skipped            bool
}

// Scraper fetches and parses the clerk's filing search results.
type Scraper struct {
	client         *http.Client
	baseURL        string
	store          *store.Store
	minInterval    time.Duration
	maxAttempts    int
	initialBackoff time.Duration
	log            zerolog.Logger
}

// New creates a Scraper against baseURL, persisting through st. minInterval
// throttles repeat scrapes; a discovery pass inside the interval is skipped
// unless forced.
func New(baseURL string, minInterval time.Duration, st *store.Store, log zerolog.Logger) *Scraper {
	return &Scraper{
		client:         &http.Client{Timeout: 30 * time.Second},
		baseURL:        strings.TrimRight(baseURL, "/"),
		store:          st,
		minInterval:    minInterval,
		maxAttempts:    defaultMaxAttempts,
		initialBackoff: defaultInitialBackoff,
		log:            log,
	}
}

// UpdateData runs one discovery pass: fetch the filing list for year (zero
// means the current year), keep rows not already in the registry, and append
// them to their members with pending status.
func (s *Scraper) UpdateData(force bool, year int) (*Summary, error) {
	if !force {
		if last, ok := s.store.LastUpdateTime(); ok {
			since := time.Since(last)
			if since < s.minInterval {
				s.log.Info().Dur("since_last", since).Msg("last scrape is recent, skipping")
				reg, err := s.store.LoadRegistry()
				if err != nil {
					return nil, err
				}
				return &Summary{
					MembersWithFilings: len(reg.Members),
					LastUpdated:        reg.LastUpdated,
					Skipped:            true,
				}, nil
			}
		}
	}

	existing, err := s.store.ExistingLinks()
	if err != nil {
		return nil, err
	}

	current, err := s.FetchFilings(year)
	if err != nil {
		return nil, err
	}

	// The link set also absorbs links seen during this pass, so a search
	// response listing the same filing twice yields one registry entry.
	var newFilings []ScrapedFiling
	for _, filing := range current {
		if _, ok := existing[filing.PDFLink]; ok {
			continue
		}
		existing[filing.PDFLink] = struct{}{}
		newFilings = append(newFilings, filing)
	}

	reg, err := s.store.LoadRegistry()
	if err != nil {
		return nil, err
	}

	for _, filing := range newFilings {
		key := MemberKey(filing.Name, filing.Office)
		member, ok := reg.Members[key]
		if !ok {
			member = &types.Member{Name: filing.Name, Office: filing.Office}
			reg.Members[key] = member
		}
		member.Filings = append(member.Filings, types.Filing{
			PDFID:            filing.PDFID,
			Year:             filing.Year,
			FilingType:       filing.FilingType,
			PDFLink:          filing.PDFLink,
			ScrapedDate:      filing.ScrapedDate,
			ProcessingStatus: types.StatusPending,
		})
	}

	if err := s.store.SaveRegistry(reg); err != nil {
		return nil, err
	}

	s.log.Info().
		Int("found", len(current)).
		Int("new", len(newFilings)).
		Msg("discovery pass complete")

	return &Summary{
		TotalFilingsFound:  len(current),
		NewFilingsCount:    len(newFilings),
		NewFilings:         newFilings,
		MembersWithFilings: len(reg.Members),
		LastUpdated:        reg.LastUpdated,
	}, nil
}

// FetchFilings posts the year search form and parses the result table,
// retrying network failures with backoff.
func (s *Scraper) FetchFilings(year int) ([]ScrapedFiling, error) {
	if year == 0 {
		year = time.Now().Year()
	}

	var lastErr error
	backoff := s.initialBackoff
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if attempt > 1 {
			s.log.Warn().Int("attempt", attempt).Err(lastErr).Msg("retrying filing search")
			time.Sleep(backoff)
			backoff *= 2
		}

		var filings []ScrapedFiling
		filings, lastErr = s.fetchOnce(year)
		if lastErr == nil {
			return filings, nil
		}
	}
	return nil, fmt.Errorf("filing search failed after %d attempts: %w", s.maxAttempts, lastErr)
}

func (s *Scraper) fetchOnce(year int) ([]ScrapedFiling, error) {
	form := url.Values{"FilingYear": {strconv.Itoa(year)}}

	req, err := http.NewRequest(http.MethodPost, s.baseURL+searchPath, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("received non-OK status code %d from filing search", resp.StatusCode)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse search results: %w", err)
	}

	return s.parseFilings(doc), nil
}

// parseFilings walks the result table rows. Only PTR filings are kept; other
// disclosure types carry no transaction tables worth extracting.
func (s *Scraper) parseFilings(doc *html.Node) []ScrapedFiling {
	now := types.Timestamp(time.Now())
	var filings []ScrapedFiling

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "tr" && attrValue(n, "role") == "row" {
			if filing, ok := s.parseRow(n, now); ok {
				filings = append(filings, filing)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return filings
}

func (s *Scraper) parseRow(row *html.Node, scrapedDate string) (ScrapedFiling, bool) {
	var filing ScrapedFiling

	aTag := findATag(row)
	if aTag == nil {
		return filing, false
	}

	for c := row.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || c.Data != "td" {
			continue
		}
		switch attrValue(c, "data-label") {
		case "Filing":
			filing.FilingType = strings.TrimSpace(extractText(c))
		case "Office":
			filing.Office = strings.TrimSpace(extractText(c))
		case "Filing Year":
			filing.Year = strings.TrimSpace(extractText(c))
		}
	}

	if !strings.Contains(filing.FilingType, "PTR") {
		return filing, false
	}

	href := attrValue(aTag, "href")
	if href == "" {
		return filing, false
	}
	filing.PDFLink = s.baseURL + "/" + strings.TrimLeft(strings.TrimSpace(href), "/")
	filing.Name = strings.TrimSpace(extractText(aTag))
	filing.PDFID = store.PDFIDFromLink(filing.PDFLink)
	filing.ScrapedDate = scrapedDate

	return filing, true
}

// MemberKey derives the stable registry key for an official from the
// normalized name and office.
func MemberKey(name, office string) string {
	cleanName := strings.ReplaceAll(name, "Hon.. ", "")
	cleanName = strings.ReplaceAll(cleanName, "Former Member", "")
	cleanName = strings.TrimSpace(cleanName)
	cleanOffice := strings.ReplaceAll(strings.TrimSpace(office), " ", "")
	return cleanName + "_" + cleanOffice
}

func attrValue(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func findATag(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "a" {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findATag(c); found != nil {
			return found
		}
	}
	return nil
}

func extractText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(extractText(c))
	}
	return sb.String()
}
