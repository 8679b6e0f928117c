// Package memory provides an in-memory Store for development and testing.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/foosdb/rankingsd/internal/rankings"
)

// Store implements rankings.Store with process-local maps. It honors the
// same batch invariant as the Postgres implementation: a ranking is stored
// whole or not at all.
type Store struct {
	mu       sync.RWMutex
	players  map[int]rankings.Player
	rankings map[string]rankings.Ranking
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		players:  make(map[int]rankings.Player),
		rankings: make(map[string]rankings.Ranking),
	}
}

// UpsertPlayer replaces any existing record for the same license.
func (s *Store) UpsertPlayer(_ context.Context, player rankings.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.players[player.ITSFID] = player
	return nil
}

// GetPlayer fetches a player by license number.
func (s *Store) GetPlayer(_ context.Context, itsfID int) (rankings.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	player, ok := s.players[itsfID]
	if !ok {
		return rankings.Player{}, rankings.ErrNotFound
	}
	return player, nil
}

// ListPlayerIDs returns all license numbers in ascending order.
func (s *Store) ListPlayerIDs(_ context.Context) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int, 0, len(s.players))
	for id := range s.players {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}

// ListPlayers returns identity summaries in ascending license order.
func (s *Store) ListPlayers(_ context.Context) ([]rankings.PlayerSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]rankings.PlayerSummary, 0, len(s.players))
	for _, player := range s.players {
		out = append(out, rankings.PlayerSummary{
			ITSFID:    player.ITSFID,
			FirstName: player.FirstName,
			LastName:  player.LastName,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ITSFID < out[j].ITSFID })
	return out, nil
}

// InsertRanking stores the batch under its coordinate key.
func (s *Store) InsertRanking(_ context.Context, ranking rankings.Ranking, replace bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ranking.Key()
	if _, exists := s.rankings[key]; exists && !replace {
		return fmt.Errorf("ranking %s already stored", key)
	}
	copied := ranking
	copied.Entries = append([]rankings.RankingEntry(nil), ranking.Entries...)
	s.rankings[key] = copied
	return nil
}

// HasRanking reports whether a ranking for the coordinate is stored.
func (s *Store) HasRanking(
	_ context.Context,
	source rankings.Source,
	year int,
	category rankings.RankingCategory,
	class rankings.RankingClass,
) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key := rankings.Ranking{Source: source, Year: year, Category: category, Class: class}.Key()
	_, ok := s.rankings[key]
	return ok, nil
}

// ListRankings returns the placements recorded for one player, newest first.
func (s *Store) ListRankings(_ context.Context, itsfID int) ([]rankings.PlayerPlacement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []rankings.PlayerPlacement
	for _, ranking := range s.rankings {
		for _, entry := range ranking.Entries {
			if entry.PlayerID != itsfID {
				continue
			}
			out = append(out, rankings.PlayerPlacement{
				Source:   ranking.Source,
				Year:     ranking.Year,
				Category: ranking.Category,
				Class:    ranking.Class,
				Place:    entry.Place,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year > out[j].Year
		}
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Class < out[j].Class
	})
	return out, nil
}

// Ping always succeeds.
func (s *Store) Ping(_ context.Context) error {
	return nil
}

// Ranking returns the stored batch for a coordinate, for test assertions.
func (s *Store) Ranking(source rankings.Source, year int, category rankings.RankingCategory, class rankings.RankingClass) (rankings.Ranking, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rankings[rankings.Ranking{Source: source, Year: year, Category: category, Class: class}.Key()]
	return r, ok
}
