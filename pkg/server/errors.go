package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/78Spinoza/claudeproxy/pkg/anthropic"
	"github.com/78Spinoza/claudeproxy/pkg/backend"
	"github.com/78Spinoza/claudeproxy/pkg/transform"
)

// renderError maps pipeline failures onto client-shaped HTTP errors. Raw
// backend bodies and credentials never pass through; unexpected errors get a
// generic 500 with an incident id for correlation.
func renderError(w http.ResponseWriter, err error) {
	var reqErr *transform.RequestError
	if errors.As(err, &reqErr) {
		writeErrorBody(w, http.StatusBadRequest, "invalid_request_error", reqErr.Error())
		return
	}

	var be *backend.Error
	if errors.As(err, &be) {
		switch be.Kind {
		case backend.KindAuth:
			writeErrorBody(w, http.StatusUnauthorized, "authentication_error",
				"backend rejected the configured credential")
		case backend.KindRateLimited:
			if be.RetryAfter > 0 {
				seconds := int(math.Ceil(be.RetryAfter.Seconds()))
				w.Header().Set("Retry-After", strconv.Itoa(seconds))
			}
			writeErrorBody(w, http.StatusTooManyRequests, "rate_limit_error",
				"backend rate limit exceeded, retries exhausted")
		default:
			writeErrorBody(w, http.StatusBadGateway, "api_error",
				"backend request failed")
		}
		return
	}

	incident := uuid.NewString()
	slog.Error("internal error", "incident", incident, "error", err)
	writeErrorBody(w, http.StatusInternalServerError, "api_error",
		"internal error, incident "+incident)
}

func writeErrorBody(w http.ResponseWriter, status int, errType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(anthropic.NewErrorResponse(errType, message))
}
