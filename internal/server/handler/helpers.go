package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/alanyoungcy/curvebot/internal/chain"
	"github.com/alanyoungcy/curvebot/internal/domain"
	"github.com/alanyoungcy/curvebot/internal/quote"
)

const maxBodyBytes = 64 << 10

// envelope is the response body shape for every API route.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// writeJSON marshals v with the given status. A marshal failure becomes a
// plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"success":false,"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

func writeOK(w http.ResponseWriter, message string, data any) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: message, Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Error: msg})
}

// writeServiceError maps err onto a status code. Details of 5xx errors are
// logged, not returned.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, err error) {
	status := statusFor(err)
	body := envelope{Error: err.Error()}

	var revert *chain.RevertError
	if errors.As(err, &revert) {
		body.Reason = revert.Reason
	}

	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "handler: "+op+" failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		switch status {
		case http.StatusBadGateway:
			body.Error = "chain rpc failure"
		default:
			body.Error = "internal server error"
		}
	}
	writeJSON(w, status, body)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidCredential),
		errors.Is(err, domain.ErrInvalidSlippage),
		errors.Is(err, domain.ErrPrecision),
		errors.Is(err, domain.ErrInsufficientInput),
		errors.Is(err, domain.ErrInvalidAddress):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrPhase):
		return http.StatusConflict
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrTransactionReverted):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrRPCFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody reads a JSON body into v. Unknown fields are rejected.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// parseListOpts reads limit/offset. Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 {
		limit = min(n, 500)
	}
	offset := 0
	if n, err := strconv.Atoi(q.Get("offset")); err == nil && n >= 0 {
		offset = n
	}
	return domain.ListOpts{Limit: limit, Offset: offset}
}

// parseSlippage accepts slippageBps (integer) or slippage (percent, 0-50).
// Neither gives the default 250 bps. slippageBps wins when both are set.
func parseSlippage(bps *int, percent string) (int, error) {
	if bps != nil {
		if err := quote.ValidateSlippage(*bps); err != nil {
			return 0, err
		}
		return *bps, nil
	}
	return quote.SlippageFromPercent(strings.TrimSpace(percent))
}

// slippageQuery reads the slippage parameters from the query string.
func slippageQuery(r *http.Request) (int, error) {
	q := r.URL.Query()
	if v := q.Get("slippageBps"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("slippageBps %q: %w", v, domain.ErrInvalidSlippage)
		}
		return parseSlippage(&n, "")
	}
	return parseSlippage(nil, q.Get("slippage"))
}
