package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foosdb/rankingsd/internal/rankings"
)

func TestPlayerRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewStore()
	ctx := context.Background()

	_, err := store.GetPlayer(ctx, 4711)
	require.ErrorIs(t, err, rankings.ErrNotFound)

	player := rankings.Player{ITSFID: 4711, FirstName: "Max", LastName: "Mustermann", Category: rankings.CategoryMen}
	require.NoError(t, store.UpsertPlayer(ctx, player))

	got, err := store.GetPlayer(ctx, 4711)
	require.NoError(t, err)
	assert.Equal(t, player, got)

	player.LastName = "Meier"
	require.NoError(t, store.UpsertPlayer(ctx, player))
	got, err = store.GetPlayer(ctx, 4711)
	require.NoError(t, err)
	assert.Equal(t, "Meier", got.LastName)

	ids, err := store.ListPlayerIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{4711}, ids)
}

func TestListPlayersSortedByLicense(t *testing.T) {
	t.Parallel()

	store := NewStore()
	ctx := context.Background()
	require.NoError(t, store.UpsertPlayer(ctx, rankings.Player{ITSFID: 4711, FirstName: "Max", LastName: "Mustermann"}))
	require.NoError(t, store.UpsertPlayer(ctx, rankings.Player{ITSFID: 1002, FirstName: "Marie", LastName: "Dupont"}))

	players, err := store.ListPlayers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []rankings.PlayerSummary{
		{ITSFID: 1002, FirstName: "Marie", LastName: "Dupont"},
		{ITSFID: 4711, FirstName: "Max", LastName: "Mustermann"},
	}, players)
}

func TestInsertRankingRejectsDuplicateWithoutReplace(t *testing.T) {
	t.Parallel()

	store := NewStore()
	ctx := context.Background()
	ranking := rankings.Ranking{
		Source:    rankings.SourceITSF,
		Year:      2023,
		Category:  rankings.RankingOpen,
		Class:     rankings.ClassSingles,
		QueriedAt: time.Now(),
		Entries:   []rankings.RankingEntry{{Place: 1, PlayerID: 1001}},
	}

	require.NoError(t, store.InsertRanking(ctx, ranking, false))

	ok, err := store.HasRanking(ctx, rankings.SourceITSF, 2023, rankings.RankingOpen, rankings.ClassSingles)
	require.NoError(t, err)
	assert.True(t, ok)

	require.Error(t, store.InsertRanking(ctx, ranking, false))

	ranking.Entries = []rankings.RankingEntry{{Place: 1, PlayerID: 1002}}
	require.NoError(t, store.InsertRanking(ctx, ranking, true))

	stored, ok := store.Ranking(rankings.SourceITSF, 2023, rankings.RankingOpen, rankings.ClassSingles)
	require.True(t, ok)
	assert.Equal(t, 1002, stored.Entries[0].PlayerID)
}

func TestListRankingsOrdersNewestFirst(t *testing.T) {
	t.Parallel()

	store := NewStore()
	ctx := context.Background()
	for _, year := range []int{2021, 2023, 2022} {
		ranking := rankings.Ranking{
			Source:   rankings.SourceITSF,
			Year:     year,
			Category: rankings.RankingOpen,
			Class:    rankings.ClassSingles,
			Entries:  []rankings.RankingEntry{{Place: year - 2000, PlayerID: 1001}},
		}
		require.NoError(t, store.InsertRanking(ctx, ranking, false))
	}

	placements, err := store.ListRankings(ctx, 1001)
	require.NoError(t, err)
	require.Len(t, placements, 3)
	assert.Equal(t, 2023, placements[0].Year)
	assert.Equal(t, 2021, placements[2].Year)

	placements, err = store.ListRankings(ctx, 9999)
	require.NoError(t, err)
	assert.Empty(t, placements)
}
