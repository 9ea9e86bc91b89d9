package policyindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cwhealth/policy-qa/internal/core/domain"
	"github.com/cwhealth/policy-qa/internal/infrastructure/resilience"
)

func TestSearchSendsQueryAndParsesDocuments(t *testing.T) {
	var capturedPath, capturedKey string
	var capturedPayload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedPath = r.URL.Path
		capturedKey = r.Header.Get("api-key")
		if err := json.NewDecoder(r.Body).Decode(&capturedPayload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"documents":[
			{"id":"d1","content":"wash hands","title":"Hand Hygiene Policy","reference_number":"HH-01","section":"4.2","applies_to":"clinical staff","source_file":"hh.pdf","score":0.91},
			{"id":"d2","content":"wear gowns","title":"PPE Policy","reference_number":"PPE-01","score":0.82}
		]}`))
	}))
	defer server.Close()

	client := New(server.URL, "policies", "secret", nil)
	docs, err := client.Search(context.Background(), "hand hygiene", 5, domain.SearchFilter{AppliesTo: "clinical staff"})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	if capturedPath != "/indexes/policies/query" {
		t.Fatalf("path = %q", capturedPath)
	}
	if capturedKey != "secret" {
		t.Fatalf("api-key header = %q", capturedKey)
	}
	if capturedPayload["search"] != "hand hygiene" || capturedPayload["top"] != float64(5) {
		t.Fatalf("unexpected payload: %v", capturedPayload)
	}
	filter, _ := capturedPayload["filter"].(map[string]any)
	if filter["applies_to"] != "clinical staff" {
		t.Fatalf("filter payload = %v", capturedPayload["filter"])
	}

	if len(docs) != 2 {
		t.Fatalf("documents = %d, want 2", len(docs))
	}
	if docs[0].ReferenceNumber != "HH-01" || docs[0].Section != "4.2" || docs[0].Score != 0.91 {
		t.Fatalf("unexpected first document: %+v", docs[0])
	}
}

func TestSearchMapsServerErrorToRetrievalUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "index rebuilding", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := New(server.URL, "policies", "", nil)
	_, err := client.Search(context.Background(), "hand hygiene", 5, domain.SearchFilter{})
	if !domain.IsKind(err, domain.ErrRetrievalUnavailable) {
		t.Fatalf("error = %v, want ErrRetrievalUnavailable", err)
	}
}

func TestSearchOpenBreakerCarriesRetryAfter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer server.Close()

	breaker := resilience.NewBreaker("retrieval", resilience.Config{
		FailureThreshold: 2,
		Cooldown:         time.Minute,
		RetryMaxAttempts: 1,
	}, ClassifyError)
	client := New(server.URL, "policies", "", breaker)

	for i := 0; i < 2; i++ {
		if _, err := client.Search(context.Background(), "q", 3, domain.SearchFilter{}); err == nil {
			t.Fatalf("call %d: expected error", i)
		}
	}

	_, err := client.Search(context.Background(), "q", 3, domain.SearchFilter{})
	if !domain.IsKind(err, domain.ErrRetrievalUnavailable) {
		t.Fatalf("error = %v, want ErrRetrievalUnavailable", err)
	}
	retryAfter, ok := domain.RetryAfterOf(err)
	if !ok || retryAfter <= 0 {
		t.Fatalf("retry-after = %v (ok=%v), want positive hint", retryAfter, ok)
	}
}

func TestHungIndexTimeoutCountsAndCarriesTimeoutKind(t *testing.T) {
	timeout := fmt.Errorf("search request: %w", context.DeadlineExceeded)

	if class := ClassifyError(timeout); !class.RecordFailure {
		t.Fatalf("client timeout must count toward the retrieval breaker")
	}

	client := New("http://localhost:0", "policies", "", nil)
	err := client.mapError(context.Background(), timeout)
	if !domain.IsKind(err, domain.ErrRetrievalTimeout) {
		t.Fatalf("error = %v, want ErrRetrievalTimeout", err)
	}
}

func TestCallerCancellationPassesThroughUnwrapped(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := New("http://localhost:0", "policies", "", nil)
	err := client.mapError(ctx, fmt.Errorf("search request: %w", context.Canceled))
	if domain.IsKind(err, domain.ErrRetrievalTimeout) || domain.IsKind(err, domain.ErrRetrievalUnavailable) {
		t.Fatalf("caller cancellation must not be typed as a dependency failure, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want wrapped context.Canceled", err)
	}
}

func TestClassifyErrorIgnoresClientMistakes(t *testing.T) {
	badRequest := &HTTPStatusError{Operation: "search", StatusCode: http.StatusBadRequest, Status: "400 Bad Request"}
	if class := ClassifyError(badRequest); class.RecordFailure {
		t.Fatalf("4xx classified as breaker failure")
	}
	if class := ClassifyError(context.Canceled); class.RecordFailure {
		t.Fatalf("cancellation classified as breaker failure")
	}
	serverErr := &HTTPStatusError{Operation: "search", StatusCode: http.StatusBadGateway, Status: "502 Bad Gateway"}
	if class := ClassifyError(serverErr); !class.RecordFailure || !class.Retryable {
		t.Fatalf("5xx should count and retry, got %+v", class)
	}
}
