package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/curvebot/internal/domain"
	"github.com/alanyoungcy/curvebot/internal/service"
)

// Registry is the token registry as seen by the HTTP layer.
type Registry interface {
	Register(ctx context.Context, req service.RegisterRequest) (domain.Token, error)
	Get(ctx context.Context, address string) (domain.Token, error)
	List(ctx context.Context, opts domain.ListOpts) ([]domain.Token, error)
}

// TokenHandler serves the curve/token registry.
type TokenHandler struct {
	registry Registry
	logger   *slog.Logger
}

func NewTokenHandler(registry Registry, logger *slog.Logger) *TokenHandler {
	return &TokenHandler{registry: registry, logger: logger}
}

type registerBody struct {
	CurveAddress string `json:"curveAddress"`
	Creator      string `json:"creator"`
	Description  string `json:"description"`
}

// ListTokens returns registered tokens, newest first.
// GET /api/tokens?limit=50&offset=0
func (h *TokenHandler) ListTokens(w http.ResponseWriter, r *http.Request) {
	toks, err := h.registry.List(r.Context(), parseListOpts(r))
	if err != nil {
		writeServiceError(w, r, h.logger, "list tokens", err)
		return
	}
	if toks == nil {
		toks = []domain.Token{}
	}
	writeOK(w, "", map[string]any{"tokens": toks})
}

// GetToken looks a token up by curve or token address.
// GET /api/tokens/{address}
func (h *TokenHandler) GetToken(w http.ResponseWriter, r *http.Request) {
	tok, err := h.registry.Get(r.Context(), r.PathValue("address"))
	if err != nil {
		writeServiceError(w, r, h.logger, "get token", err)
		return
	}
	writeOK(w, "", tok)
}

// RegisterToken reads the curve's token from chain and stores it.
// POST /api/tokens
func (h *TokenHandler) RegisterToken(w http.ResponseWriter, r *http.Request) {
	var body registerBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.CurveAddress == "" {
		writeError(w, http.StatusBadRequest, "curveAddress is required")
		return
	}

	tok, err := h.registry.Register(r.Context(), service.RegisterRequest{
		Curve:       body.CurveAddress,
		Creator:     body.Creator,
		Description: body.Description,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "register token", err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{Success: true, Message: "Token registered", Data: tok})
}
