package policyindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cwhealth/policy-qa/internal/core/domain"
	"github.com/cwhealth/policy-qa/internal/infrastructure/resilience"
)

const defaultTimeout = 15 * time.Second

// Client searches the policy index service. Implements the passage
// searcher port; every call goes through the retrieval breaker.
type Client struct {
	baseURL    string
	index      string
	apiKey     string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

func New(baseURL, index, apiKey string, breaker *resilience.Breaker) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		index:      index,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
		breaker:    breaker,
	}
}

type searchRequest struct {
	Search string        `json:"search"`
	Top    int           `json:"top"`
	Filter *searchFilter `json:"filter,omitempty"`
}

type searchFilter struct {
	AppliesTo string `json:"applies_to"`
}

type searchResponse struct {
	Documents []searchDocument `json:"documents"`
}

type searchDocument struct {
	ID              string  `json:"id"`
	Content         string  `json:"content"`
	Title           string  `json:"title"`
	ReferenceNumber string  `json:"reference_number"`
	Section         string  `json:"section"`
	AppliesTo       string  `json:"applies_to"`
	SourceFile      string  `json:"source_file"`
	Score           float64 `json:"score"`
	RerankerScore   float64 `json:"reranker_score"`
}

func (c *Client) Search(ctx context.Context, query string, top int, filter domain.SearchFilter) ([]domain.RetrievedDocument, error) {
	request := searchRequest{Search: query, Top: top}
	if filter.AppliesTo != "" {
		request.Filter = &searchFilter{AppliesTo: filter.AppliesTo}
	}

	var response searchResponse
	call := func(ctx context.Context) error {
		return c.postJSON(ctx, fmt.Sprintf("/indexes/%s/query", c.index), request, &response)
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(ctx, call)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, c.mapError(ctx, err)
	}

	docs := make([]domain.RetrievedDocument, 0, len(response.Documents))
	for _, doc := range response.Documents {
		docs = append(docs, domain.RetrievedDocument{
			ID:              doc.ID,
			Content:         doc.Content,
			Title:           doc.Title,
			ReferenceNumber: doc.ReferenceNumber,
			Section:         doc.Section,
			AppliesTo:       doc.AppliesTo,
			SourceFile:      doc.SourceFile,
			Score:           doc.Score,
			RerankerScore:   doc.RerankerScore,
		})
	}
	return docs, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return newStatusError("search", resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode search response: %w", err)
	}
	return nil
}

func newStatusError(operation string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &HTTPStatusError{
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       strings.TrimSpace(string(body)),
	}
}
