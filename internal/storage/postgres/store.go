// Package postgres provides the Postgres-backed persistence implementation.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/foosdb/rankingsd/internal/rankings"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// pool is the subset of pgxpool.Pool the store needs; pgxmock satisfies it.
type pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Store implements rankings.Store on top of Postgres.
//
// Expected schema:
//
//	CREATE TABLE players (
//		itsf_id      INT PRIMARY KEY,
//		first_name   TEXT NOT NULL,
//		last_name    TEXT NOT NULL,
//		birth_year   INT NOT NULL,
//		country_code TEXT NOT NULL,
//		category     TEXT NOT NULL
//	);
//	CREATE TABLE rankings (
//		id          BIGSERIAL PRIMARY KEY,
//		source      TEXT NOT NULL,
//		year        INT NOT NULL,
//		category    TEXT NOT NULL,
//		class       TEXT NOT NULL,
//		queried_at  TIMESTAMPTZ NOT NULL,
//		entry_count INT NOT NULL,
//		UNIQUE (source, year, category, class)
//	);
//	CREATE TABLE ranking_entries (
//		ranking_id     BIGINT NOT NULL REFERENCES rankings (id) ON DELETE CASCADE,
//		place          INT NOT NULL,
//		player_itsf_id INT NOT NULL
//	);
type Store struct {
	pool pool
}

// New connects a Store using the provided config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: p}, nil
}

// NewWithPool constructs a Store from an existing pool (primarily for testing).
func NewWithPool(p pool) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: p}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping verifies the backend is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", rankings.ErrStoreUnavailable, err)
	}
	return nil
}

// UpsertPlayer inserts or replaces the row keyed by the license number.
// Existing data for the key is overwritten wholesale (last-source-wins).
func (s *Store) UpsertPlayer(ctx context.Context, player rankings.Player) error {
	query := `
INSERT INTO players (itsf_id, first_name, last_name, birth_year, country_code, category)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (itsf_id) DO UPDATE SET
	first_name = EXCLUDED.first_name,
	last_name = EXCLUDED.last_name,
	birth_year = EXCLUDED.birth_year,
	country_code = EXCLUDED.country_code,
	category = EXCLUDED.category`
	_, err := s.pool.Exec(ctx, query,
		player.ITSFID,
		player.FirstName,
		player.LastName,
		player.BirthYear,
		player.CountryCode,
		string(player.Category),
	)
	if err != nil {
		return classify(fmt.Errorf("upsert player %d: %w", player.ITSFID, err))
	}
	return nil
}

// GetPlayer loads one player or returns rankings.ErrNotFound.
func (s *Store) GetPlayer(ctx context.Context, itsfID int) (rankings.Player, error) {
	query := `
SELECT itsf_id, first_name, last_name, birth_year, country_code, category
FROM players WHERE itsf_id = $1`
	var p rankings.Player
	var category string
	err := s.pool.QueryRow(ctx, query, itsfID).
		Scan(&p.ITSFID, &p.FirstName, &p.LastName, &p.BirthYear, &p.CountryCode, &category)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rankings.Player{}, rankings.ErrNotFound
		}
		return rankings.Player{}, classify(fmt.Errorf("get player %d: %w", itsfID, err))
	}
	p.Category = rankings.PlayerCategory(category)
	return p, nil
}

// ListPlayerIDs returns every stored license number in ascending order.
func (s *Store) ListPlayerIDs(ctx context.Context) ([]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT itsf_id FROM players ORDER BY itsf_id`)
	if err != nil {
		return nil, classify(fmt.Errorf("list player ids: %w", err))
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan player id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("list player ids: %w", err))
	}
	return ids, nil
}

// ListPlayers returns an identity summary per stored player, in ascending
// license order.
func (s *Store) ListPlayers(ctx context.Context) ([]rankings.PlayerSummary, error) {
	rows, err := s.pool.Query(ctx, `SELECT itsf_id, first_name, last_name FROM players ORDER BY itsf_id`)
	if err != nil {
		return nil, classify(fmt.Errorf("list players: %w", err))
	}
	defer rows.Close()

	var out []rankings.PlayerSummary
	for rows.Next() {
		var p rankings.PlayerSummary
		if err := rows.Scan(&p.ITSFID, &p.FirstName, &p.LastName); err != nil {
			return nil, fmt.Errorf("scan player summary: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("list players: %w", err))
	}
	return out, nil
}

// HasRanking reports whether a ranking for the coordinate is stored.
func (s *Store) HasRanking(
	ctx context.Context,
	source rankings.Source,
	year int,
	category rankings.RankingCategory,
	class rankings.RankingClass,
) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM rankings WHERE source = $1 AND year = $2 AND category = $3 AND class = $4)`
	var exists bool
	err := s.pool.QueryRow(ctx, query, string(source), year, string(category), string(class)).Scan(&exists)
	if err != nil {
		return false, classify(fmt.Errorf("check ranking %s/%d/%s/%s: %w", source, year, category, class, err))
	}
	return exists, nil
}

// InsertRanking writes the header row and all entry rows in one transaction.
// If the entry insert count does not match the batch size the transaction is
// rolled back and rankings.ErrBatchMismatch returned; no partial ranking is
// ever observable. With replace set, the previous ranking for the same
// coordinate is dropped inside the same transaction.
func (s *Store) InsertRanking(ctx context.Context, ranking rankings.Ranking, replace bool) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin ranking batch: %v", rankings.ErrStoreUnavailable, err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if replace {
		_, err := tx.Exec(ctx,
			`DELETE FROM rankings WHERE source = $1 AND year = $2 AND category = $3 AND class = $4`,
			string(ranking.Source), ranking.Year, string(ranking.Category), string(ranking.Class))
		if err != nil {
			return fmt.Errorf("delete previous ranking %s: %w", ranking.Key(), err)
		}
	}

	var rankingID int64
	err = tx.QueryRow(ctx, `
INSERT INTO rankings (source, year, category, class, queried_at, entry_count)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`,
		string(ranking.Source),
		ranking.Year,
		string(ranking.Category),
		string(ranking.Class),
		ranking.QueriedAt,
		len(ranking.Entries),
	).Scan(&rankingID)
	if err != nil {
		return fmt.Errorf("insert ranking header %s: %w", ranking.Key(), err)
	}

	copyRows := make([][]any, 0, len(ranking.Entries))
	for _, entry := range ranking.Entries {
		copyRows = append(copyRows, []any{rankingID, entry.Place, entry.PlayerID})
	}
	inserted, err := tx.CopyFrom(
		ctx,
		pgx.Identifier{"ranking_entries"},
		[]string{"ranking_id", "place", "player_itsf_id"},
		pgx.CopyFromRows(copyRows),
	)
	if err != nil {
		return fmt.Errorf("insert ranking entries %s: %w", ranking.Key(), err)
	}
	if inserted != int64(len(ranking.Entries)) {
		return fmt.Errorf("%w: ranking %s expected %d entries, inserted %d",
			rankings.ErrBatchMismatch, ranking.Key(), len(ranking.Entries), inserted)
	}

	if err := tx.Commit(ctx); err != nil {
		return classify(fmt.Errorf("commit ranking batch %s: %w", ranking.Key(), err))
	}
	return nil
}

// ListRankings returns every ranking placement recorded for one player,
// newest year first.
func (s *Store) ListRankings(ctx context.Context, itsfID int) ([]rankings.PlayerPlacement, error) {
	query := `
SELECT r.source, r.year, r.category, r.class, e.place
FROM ranking_entries e
JOIN rankings r ON r.id = e.ranking_id
WHERE e.player_itsf_id = $1
ORDER BY r.year DESC, r.category, r.class`
	rows, err := s.pool.Query(ctx, query, itsfID)
	if err != nil {
		return nil, classify(fmt.Errorf("list rankings for player %d: %w", itsfID, err))
	}
	defer rows.Close()

	var out []rankings.PlayerPlacement
	for rows.Next() {
		var pl rankings.PlayerPlacement
		var source, category, class string
		if err := rows.Scan(&source, &pl.Year, &category, &class, &pl.Place); err != nil {
			return nil, fmt.Errorf("scan ranking placement: %w", err)
		}
		pl.Source = rankings.Source(source)
		pl.Category = rankings.RankingCategory(category)
		pl.Class = rankings.RankingClass(class)
		out = append(out, pl)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("list rankings for player %d: %w", itsfID, err))
	}
	return out, nil
}

// classify maps connection-level failures onto rankings.ErrStoreUnavailable
// so the pipeline can tell a dead backend from a bad statement.
func classify(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", rankings.ErrStoreUnavailable, err)
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return fmt.Errorf("%w: %v", rankings.ErrStoreUnavailable, err)
	}
	return err
}
