package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/curvebot/internal/domain"
	"github.com/alanyoungcy/curvebot/internal/wallet"
)

// RegisterRequest adds a curve to the registry. Name and symbol are read
// from the token contract.
type RegisterRequest struct {
	Curve       string
	Creator     string
	Description string
}

// RegistryService maintains the curve/token registry used to gate trading
// routes to known curves.
type RegistryService struct {
	tokens domain.TokenStore
	chain  ChainReader
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewRegistryService creates a RegistryService. audit may be nil.
func NewRegistryService(tokens domain.TokenStore, reader ChainReader, audit domain.AuditStore, logger *slog.Logger) *RegistryService {
	return &RegistryService{tokens: tokens, chain: reader, audit: audit, logger: logger}
}

// Register resolves the curve's token and its metadata on chain and upserts
// the registry row.
func (s *RegistryService) Register(ctx context.Context, req RegisterRequest) (domain.Token, error) {
	curve, err := wallet.ParseAddress(req.Curve)
	if err != nil {
		return domain.Token{}, fmt.Errorf("registry: curve: %w", err)
	}
	creator := ""
	if strings.TrimSpace(req.Creator) != "" {
		addr, err := wallet.ParseAddress(req.Creator)
		if err != nil {
			return domain.Token{}, fmt.Errorf("registry: creator: %w", err)
		}
		creator = wallet.Lower(addr)
	}

	tokenAddr, err := s.chain.CurveToken(ctx, curve)
	if err != nil {
		return domain.Token{}, fmt.Errorf("registry: %w", err)
	}
	info, err := s.chain.TokenInfo(ctx, tokenAddr)
	if err != nil {
		return domain.Token{}, fmt.Errorf("registry: %w", err)
	}

	tok := domain.Token{
		CurveAddress: wallet.Lower(curve),
		TokenAddress: wallet.Lower(tokenAddr),
		Name:         info.Name,
		Symbol:       info.Symbol,
		Creator:      creator,
		Description:  req.Description,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.tokens.Upsert(ctx, tok); err != nil {
		return domain.Token{}, fmt.Errorf("registry: upsert: %w", err)
	}

	if s.audit != nil {
		if auditErr := s.audit.Log(ctx, "token_registered", map[string]any{
			"curve":  tok.CurveAddress,
			"token":  tok.TokenAddress,
			"symbol": tok.Symbol,
		}); auditErr != nil {
			s.logger.WarnContext(ctx, "registry: audit log failed", slog.String("error", auditErr.Error()))
		}
	}

	s.logger.InfoContext(ctx, "registry: token registered",
		slog.String("curve", tok.CurveAddress),
		slog.String("token", tok.TokenAddress),
		slog.String("symbol", tok.Symbol),
	)
	return tok, nil
}

// Get looks address up as a curve first, then as a token.
func (s *RegistryService) Get(ctx context.Context, address string) (domain.Token, error) {
	addr, err := wallet.ParseAddress(address)
	if err != nil {
		return domain.Token{}, fmt.Errorf("registry: %w", err)
	}
	key := wallet.Lower(addr)

	tok, err := s.tokens.GetByCurve(ctx, key)
	if err == nil {
		return tok, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Token{}, fmt.Errorf("registry: get %s: %w", key, err)
	}
	tok, err = s.tokens.GetByToken(ctx, key)
	if err != nil {
		return domain.Token{}, fmt.Errorf("registry: get %s: %w", key, err)
	}
	return tok, nil
}

// List returns registered tokens, newest first.
func (s *RegistryService) List(ctx context.Context, opts domain.ListOpts) ([]domain.Token, error) {
	toks, err := s.tokens.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("registry: list: %w", err)
	}
	return toks, nil
}

// EnsureCurve returns domain.ErrNotFound when curve is not registered.
func (s *RegistryService) EnsureCurve(ctx context.Context, curve string) (domain.Token, error) {
	addr, err := wallet.ParseAddress(curve)
	if err != nil {
		return domain.Token{}, fmt.Errorf("registry: %w", err)
	}
	tok, err := s.tokens.GetByCurve(ctx, wallet.Lower(addr))
	if err != nil {
		return domain.Token{}, fmt.Errorf("registry: curve %s: %w", wallet.Lower(addr), err)
	}
	return tok, nil
}
