package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/listingbot/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketCols = `id, question, category, kind, options, expires_at,
	event_id, event_title, banner_image, banner_icon, option_images,
	status, status_reason, message_id, banner_path, banner_url,
	asset_url, asset_revision, tx_hash, onchain_id, created_at, updated_at`

// Insert stores a new market row.
func (s *MarketStore) Insert(ctx context.Context, m domain.Market) error {
	options, err := json.Marshal(nonNil(m.Options))
	if err != nil {
		return fmt.Errorf("postgres: encode options %s: %w", m.ID, err)
	}
	images := m.OptionImages
	if images == nil {
		images = []domain.OptionImage{}
	}
	optionImages, err := json.Marshal(images)
	if err != nil {
		return fmt.Errorf("postgres: encode option images %s: %w", m.ID, err)
	}

	const query = `
		INSERT INTO markets (
			id, question, category, kind, options, expires_at,
			event_id, event_title, banner_image, banner_icon, option_images,
			status, status_reason
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err = s.pool.Exec(ctx, query,
		m.ID, m.Question, m.Category, string(m.Kind), options, m.ExpiresAt,
		m.EventID, m.EventTitle, m.BannerImage, m.BannerIcon, optionImages,
		string(m.Status), m.StatusReason,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: insert market %s: %w", m.ID, err)
	}
	return nil
}

func scanMarket(row pgx.Row) (domain.Market, error) {
	var (
		m                     domain.Market
		kind, status          string
		options, optionImages []byte
	)
	err := row.Scan(
		&m.ID, &m.Question, &m.Category, &kind, &options, &m.ExpiresAt,
		&m.EventID, &m.EventTitle, &m.BannerImage, &m.BannerIcon, &optionImages,
		&status, &m.StatusReason, &m.MessageID, &m.BannerPath, &m.BannerURL,
		&m.AssetURL, &m.AssetRevision, &m.TxHash, &m.OnchainID, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	m.Kind = domain.MarketKind(kind)
	m.Status = domain.MarketStatus(status)
	if err := json.Unmarshal(options, &m.Options); err != nil {
		return domain.Market{}, fmt.Errorf("decode options: %w", err)
	}
	if err := json.Unmarshal(optionImages, &m.OptionImages); err != nil {
		return domain.Market{}, fmt.Errorf("decode option images: %w", err)
	}
	return m, nil
}

// Get retrieves a market by id.
func (s *MarketStore) Get(ctx context.Context, id string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+marketCols+` FROM markets WHERE id = $1`, id)
	m, err := scanMarket(row)
	if err != nil {
		if notFound(err) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

// Exists reports whether a market with id has been ingested before.
func (s *MarketStore) Exists(ctx context.Context, id string) (bool, error) {
	var ok bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM markets WHERE id = $1)`, id).Scan(&ok); err != nil {
		return false, fmt.Errorf("postgres: market exists %s: %w", id, err)
	}
	return ok, nil
}

// List returns markets, optionally filtered by status, oldest first.
func (s *MarketStore) List(ctx context.Context, f domain.MarketFilter) ([]domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets`
	args := []any{}
	argIdx := 1

	if f.Status != "" {
		query += fmt.Sprintf(" WHERE status = $%d", argIdx)
		args = append(args, string(f.Status))
		argIdx++
	}
	query += " ORDER BY created_at ASC, id ASC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, f.Limit)
		argIdx++
	}
	if f.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, f.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	var out []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets rows: %w", err)
	}
	return out, nil
}

// Transition writes the mutable fields of m and moves the row from status
// from to m.Status in one compare-and-set update.
func (s *MarketStore) Transition(ctx context.Context, m domain.Market, from domain.MarketStatus) error {
	if err := domain.CheckTransition(from, m.Status); err != nil {
		return fmt.Errorf("postgres: transition market %s: %w", m.ID, err)
	}
	return s.write(ctx, "transition", m, from)
}

// Update writes the mutable fields of m while its status stays put.
func (s *MarketStore) Update(ctx context.Context, m domain.Market) error {
	return s.write(ctx, "update", m, m.Status)
}

// write is the compare-and-set update behind Transition and Update.
func (s *MarketStore) write(ctx context.Context, op string, m domain.Market, from domain.MarketStatus) error {
	const query = `
		UPDATE markets SET
			status         = $2,
			status_reason  = $3,
			message_id     = $4,
			banner_path    = $5,
			banner_url     = $6,
			asset_url      = $7,
			asset_revision = $8,
			tx_hash        = $9,
			onchain_id     = $10,
			updated_at     = NOW()
		WHERE id = $1 AND status = $11`

	tag, err := s.pool.Exec(ctx, query,
		m.ID, string(m.Status), m.StatusReason, m.MessageID,
		m.BannerPath, m.BannerURL, m.AssetURL, m.AssetRevision,
		m.TxHash, m.OnchainID, string(from),
	)
	if err != nil {
		return fmt.Errorf("postgres: %s market %s: %w", op, m.ID, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	exists, err := s.Exists(ctx, m.ID)
	if err != nil {
		return err
	}
	if !exists {
		return domain.ErrNotFound
	}
	return fmt.Errorf("postgres: %s market %s from %s: %w", op, m.ID, from, domain.ErrStaleStatus)
}

// CountByStatus returns the number of markets in each status.
func (s *MarketStore) CountByStatus(ctx context.Context) (map[domain.MarketStatus]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM markets GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("postgres: count markets: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.MarketStatus]int64)
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("postgres: scan market count: %w", err)
		}
		out[domain.MarketStatus(status)] = n
	}
	return out, rows.Err()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

var _ domain.MarketStore = (*MarketStore)(nil)
