package rankings

import (
	"context"
	"errors"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrBatchMismatch signals that a ranking batch could not be committed as a
// unit (for example the entry insert count did not match the header count).
// The batch is rolled back; the run continues with the next unit.
var ErrBatchMismatch = errors.New("ranking batch row count mismatch")

// ErrStoreUnavailable signals that the storage backend cannot be reached.
// This is fatal for the current run, never for the process.
var ErrStoreUnavailable = errors.New("store unavailable")

// Store persists players and ranking batches.
type Store interface {
	// UpsertPlayer inserts or replaces the player keyed by ITSFID
	// (last-source-wins, not merged field by field).
	UpsertPlayer(ctx context.Context, player Player) error
	// GetPlayer loads one player or returns ErrNotFound.
	GetPlayer(ctx context.Context, itsfID int) (Player, error)
	// ListPlayerIDs returns every stored license number.
	ListPlayerIDs(ctx context.Context) ([]int, error)
	// ListPlayers returns an identity summary for every stored player.
	ListPlayers(ctx context.Context) ([]PlayerSummary, error)
	// InsertRanking commits header plus entries atomically. With replace set,
	// a previously stored ranking for the same coordinate is dropped in the
	// same transaction.
	InsertRanking(ctx context.Context, ranking Ranking, replace bool) error
	// HasRanking reports whether a ranking for the coordinate is stored.
	HasRanking(ctx context.Context, source Source, year int, category RankingCategory, class RankingClass) (bool, error)
	// ListRankings returns the ranking placements recorded for one player.
	ListRankings(ctx context.Context, itsfID int) ([]PlayerPlacement, error)
	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error
}

// PlayerSummary is the listing shape for one player: the license number
// plus the name, without the full profile.
type PlayerSummary struct {
	ITSFID    int    `json:"itsf_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// PlayerPlacement is one ranking appearance of a player, used for serving.
type PlayerPlacement struct {
	Source   Source          `json:"source"`
	Year     int             `json:"year"`
	Category RankingCategory `json:"category"`
	Class    RankingClass    `json:"class"`
	Place    int             `json:"place"`
}

// Fetcher retrieves one remote page. A single round trip, no retries; the
// caller decides how to react to failures.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Publisher pushes run-completion events to an external topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}
