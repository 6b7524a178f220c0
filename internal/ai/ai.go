/*
Package ai generates short Gemini-backed analyses of the transactions
extracted from a disclosure filing. Analysis is best-effort enrichment for
notifications; failures are logged by callers and never affect stored state.
*/
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/jcarver/ptrwatch/internal/types"
)

// Observation is one flagged aspect of a filing's trading activity.
type Observation struct {
	Category string `json:"category"`
	Details  string `json:"details"`
}

// Analysis is the structured output of a filing analysis.
type Analysis struct {
	Summary         []string      `json:"summary"`
	NotableActivity []Observation `json:"notable_activity"`
}

var systemInstruction = `
You are a financial analyst covering congressional stock trading disclosures.

You will be given the parsed transactions from one periodic transaction report
(PTR) filed by a member of the US House of Representatives: asset names,
tickers, owner relationship, purchase/sale, transaction and notification
dates, and the disclosed amount ranges.

You have access to Google Search and may use it to check recent news about
the traded companies and the filer.

Produce:
1. A 2-4 bullet summary of the filing's trading activity: which sectors and
   companies, rough total disclosed value, purchases versus sales.
2. A list of notable observations. Flag only concrete, checkable items:
   - Trades in companies overseen by the member's known committee assignments.
   - Unusually large disclosed ranges relative to the rest of the filing.
   - Clusters of trades in one company or sector within a short window.
   - Long gaps between transaction date and notification date.
Avoid speculation about motive. Every observation must reference specific
transactions from the provided data.
`

// GenerateSummary asks Gemini for a structured analysis of one filing's
// transactions.
func GenerateSummary(memberName string, transactions []types.Transaction, apiKey, modelName string) (*Analysis, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	prompt := fmt.Sprintf("Filer: %s\n\nTransactions:\n%s", memberName, formatTransactions(transactions))

	systemContent := &genai.Content{
		Parts: []*genai.Part{
			{Text: systemInstruction},
		},
		Role: "system",
	}

	userContent := &genai.Content{
		Parts: []*genai.Part{
			{Text: prompt},
		},
		Role: "user",
	}

	contents := []*genai.Content{systemContent, userContent}

	tools := []*genai.Tool{
		{
			GoogleSearch: &genai.GoogleSearch{},
		},
	}

	resp, err := client.Models.GenerateContent(ctx, modelName, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   getResponseSchema(),
		Tools:            tools,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini API call failed: %w", err)
	}

	respText := resp.Text()

	var analysis Analysis
	if err := json.Unmarshal([]byte(respText), &analysis); err != nil {
		return nil, fmt.Errorf("failed to unmarshal gemini JSON response: %w. Raw text: %s", err, respText)
	}

	return &analysis, nil
}

func formatTransactions(transactions []types.Transaction) string {
	var sb strings.Builder
	for _, tx := range transactions {
		fmt.Fprintf(&sb, "- %s (%s) | %s | owner: %s | traded %s, notified %s | %s\n",
			tx.Asset, tx.Ticker, tx.TransactionType, tx.Owner,
			tx.TransactionDate, tx.NotificationDate, tx.Amount)
	}
	return sb.String()
}

func getResponseSchema() *genai.Schema {
	observationSchema := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"category": {Type: genai.TypeString, Description: "One of: committee overlap, large trade, cluster, late notification, other."},
			"details":  {Type: genai.TypeString, Description: "The specific transactions and facts behind the observation."},
		},
		Required: []string{"category", "details"},
	}

	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"summary": {
				Type:        genai.TypeArray,
				Items:       &genai.Schema{Type: genai.TypeString},
				Description: "2-4 concise bullet points summarizing the filing's trading activity.",
			},
			"notable_activity": {
				Type:        genai.TypeArray,
				Items:       observationSchema,
				Description: "Concrete observations tied to specific transactions.",
			},
		},
		Required: []string{"summary", "notable_activity"},
	}
}
