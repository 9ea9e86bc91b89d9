package httpadapter

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/cwhealth/policy-qa/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrGenerationRateLimited):
		return http.StatusTooManyRequests
	case domain.IsKind(err, domain.ErrRetrievalTimeout),
		domain.IsKind(err, domain.ErrGenerationTimeout):
		return http.StatusGatewayTimeout
	case domain.IsKind(err, domain.ErrRetrievalUnavailable),
		domain.IsKind(err, domain.ErrGenerationUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable {
		if retryAfter, ok := domain.RetryAfterOf(err); ok && retryAfter > 0 {
			seconds := int(math.Ceil(retryAfter.Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
		}
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		// Unclassified failures may carry upstream response bodies or
		// driver detail. Keep that server-side only.
		slog.Error("unclassified_failure",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
		message = "internal error"
	}
	writeJSON(w, status, map[string]string{"error": message})
}
