package openai

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/cwhealth/policy-qa/internal/core/domain"
	"github.com/cwhealth/policy-qa/internal/infrastructure/resilience"
)

type scriptedChat struct {
	calls    int
	requests []openai.ChatCompletionRequest
	reply    string
	err      error
}

func (s *scriptedChat) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.calls++
	s.requests = append(s.requests, req)
	if s.err != nil {
		return openai.ChatCompletionResponse{}, s.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: s.reply}}},
	}, nil
}

func testDocs() []domain.RetrievedDocument {
	return []domain.RetrievedDocument{
		{ReferenceNumber: "HH-01", Title: "Hand Hygiene Policy", Section: "4.2", Content: "Wash hands before patient contact."},
		{ReferenceNumber: "PPE-01", Title: "PPE Policy", Content: "Wear gowns in isolation rooms."},
	}
}

func TestCompleteBuildsGroundedPromptAndParsesCitations(t *testing.T) {
	chat := &scriptedChat{reply: "Wash hands per Ref #HH-01. Wear gowns per Ref #PPE-01, see Ref #HH-01 again."}
	client := NewWithAPI(chat, "gpt-4o-mini", nil)

	completion, err := client.Complete(context.Background(), "what are the rules?", testDocs(), nil)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	if len(chat.requests) != 1 {
		t.Fatalf("requests = %d, want 1", len(chat.requests))
	}
	system := chat.requests[0].Messages[0].Content
	for _, want := range []string{"Ref #HH-01 — Hand Hygiene Policy", "(Section: 4.2)", "Wash hands before patient contact.", "Ref #PPE-01"} {
		if !strings.Contains(system, want) {
			t.Fatalf("system prompt missing %q:\n%s", want, system)
		}
	}
	if strings.Contains(system, "Additional instructions") {
		t.Fatalf("first draft prompt should not carry extra instructions")
	}
	if chat.requests[0].Messages[1].Content != "what are the rules?" {
		t.Fatalf("user message = %q", chat.requests[0].Messages[1].Content)
	}

	if len(completion.Citations) != 2 {
		t.Fatalf("citations = %v, want HH-01 and PPE-01 once each", completion.Citations)
	}
	if completion.Citations[0].ReferenceNumber != "HH-01" || completion.Citations[1].ReferenceNumber != "PPE-01" {
		t.Fatalf("citations = %v", completion.Citations)
	}
}

func TestCompleteAppendsRegenerationInstructions(t *testing.T) {
	chat := &scriptedChat{reply: "ok"}
	client := NewWithAPI(chat, "gpt-4o-mini", nil)

	_, err := client.Complete(context.Background(), "q", testDocs(), []string{"Cite every statement."})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	system := chat.requests[0].Messages[0].Content
	if !strings.Contains(system, "Additional instructions:") || !strings.Contains(system, "- Cite every statement.") {
		t.Fatalf("instructions missing from prompt:\n%s", system)
	}
}

func TestCompleteMapsRateLimitWithRetryAfter(t *testing.T) {
	chat := &scriptedChat{err: &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests, Message: "slow down"}}
	client := NewWithAPI(chat, "gpt-4o-mini", nil)

	_, err := client.Complete(context.Background(), "q", testDocs(), nil)
	if !domain.IsKind(err, domain.ErrGenerationRateLimited) {
		t.Fatalf("error = %v, want ErrGenerationRateLimited", err)
	}
	if retryAfter, ok := domain.RetryAfterOf(err); !ok || retryAfter <= 0 {
		t.Fatalf("retry-after = %v (ok=%v)", retryAfter, ok)
	}
}

func TestCompleteOpenBreakerMapsToUnavailable(t *testing.T) {
	chat := &scriptedChat{err: &openai.APIError{HTTPStatusCode: http.StatusInternalServerError, Message: "boom"}}
	breaker := resilience.NewBreaker("generation", resilience.Config{
		FailureThreshold: 2,
		Cooldown:         time.Minute,
		RetryMaxAttempts: 1,
	}, ClassifyError)
	client := NewWithAPI(chat, "gpt-4o-mini", breaker)

	for i := 0; i < 2; i++ {
		if _, err := client.Complete(context.Background(), "q", testDocs(), nil); err == nil {
			t.Fatalf("call %d: expected error", i)
		}
	}

	_, err := client.Complete(context.Background(), "q", testDocs(), nil)
	if !domain.IsKind(err, domain.ErrGenerationUnavailable) {
		t.Fatalf("error = %v, want ErrGenerationUnavailable", err)
	}
	if chat.calls != 2 {
		t.Fatalf("backend calls = %d, want 2 (open circuit must reject locally)", chat.calls)
	}
}

func TestClassifyErrorSparesClientMistakes(t *testing.T) {
	badRequest := &openai.APIError{HTTPStatusCode: http.StatusBadRequest}
	if class := ClassifyError(badRequest); class.RecordFailure {
		t.Fatalf("400 classified as breaker failure")
	}
	if class := ClassifyError(context.Canceled); class.RecordFailure {
		t.Fatalf("cancellation classified as breaker failure")
	}
	if class := ClassifyError(context.DeadlineExceeded); !class.RecordFailure {
		t.Fatalf("deadline should count toward the breaker")
	}
}
