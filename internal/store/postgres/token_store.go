package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/curvebot/internal/domain"
)

// TokenStore implements domain.TokenStore.
type TokenStore struct {
	pool *pgxpool.Pool
}

// NewTokenStore creates a TokenStore on pool.
func NewTokenStore(pool *pgxpool.Pool) *TokenStore {
	return &TokenStore{pool: pool}
}

const tokenCols = `curve_address, token_address, name, symbol, creator, description, created_at`

// Upsert inserts t or refreshes its metadata. created_at is kept from the
// first registration.
func (s *TokenStore) Upsert(ctx context.Context, t domain.Token) error {
	const query = `
		INSERT INTO tokens (` + tokenCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (curve_address) DO UPDATE SET
			token_address = EXCLUDED.token_address,
			name          = EXCLUDED.name,
			symbol        = EXCLUDED.symbol,
			creator       = COALESCE(NULLIF(EXCLUDED.creator, ''), tokens.creator),
			description   = COALESCE(NULLIF(EXCLUDED.description, ''), tokens.description),
			updated_at    = NOW()`

	_, err := s.pool.Exec(ctx, query,
		strings.ToLower(t.CurveAddress), strings.ToLower(t.TokenAddress),
		t.Name, t.Symbol, strings.ToLower(t.Creator), t.Description, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert token %s: %w", t.CurveAddress, err)
	}
	return nil
}

// GetByCurve looks a row up by bonding curve address.
func (s *TokenStore) GetByCurve(ctx context.Context, curveAddress string) (domain.Token, error) {
	return s.getOne(ctx, "curve_address", curveAddress)
}

// GetByToken looks a row up by ERC-20 address.
func (s *TokenStore) GetByToken(ctx context.Context, tokenAddress string) (domain.Token, error) {
	return s.getOne(ctx, "token_address", tokenAddress)
}

func (s *TokenStore) getOne(ctx context.Context, col, addr string) (domain.Token, error) {
	query := `SELECT ` + tokenCols + ` FROM tokens WHERE ` + col + ` = $1`
	rows, err := s.pool.Query(ctx, query, strings.ToLower(addr))
	if err != nil {
		return domain.Token{}, fmt.Errorf("postgres: get token by %s: %w", col, err)
	}
	t, err := pgx.CollectExactlyOneRow(rows, scanToken)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Token{}, fmt.Errorf("postgres: token %s: %w", addr, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Token{}, fmt.Errorf("postgres: get token by %s: %w", col, err)
	}
	return t, nil
}

// List returns tokens newest first.
func (s *TokenStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Token, error) {
	query := `SELECT ` + tokenCols + ` FROM tokens WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}
	query += " ORDER BY created_at DESC, curve_address"
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list tokens: %w", err)
	}
	tokens, err := pgx.CollectRows(rows, scanToken)
	if err != nil {
		return nil, fmt.Errorf("postgres: list tokens: %w", err)
	}
	return tokens, nil
}

func scanToken(row pgx.CollectableRow) (domain.Token, error) {
	var t domain.Token
	err := row.Scan(&t.CurveAddress, &t.TokenAddress, &t.Name, &t.Symbol, &t.Creator, &t.Description, &t.CreatedAt)
	return t, err
}

var _ domain.TokenStore = (*TokenStore)(nil)
