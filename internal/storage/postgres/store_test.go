package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/foosdb/rankingsd/internal/rankings"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewWithPool(mock)
	require.NoError(t, err)
	return store, mock
}

func TestUpsertPlayer(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	player := rankings.Player{
		ITSFID:      4711,
		FirstName:   "Max",
		LastName:    "Mustermann",
		BirthYear:   1990,
		CountryCode: "GER",
		Category:    rankings.CategoryMen,
	}

	mock.ExpectExec("INSERT INTO players").
		WithArgs(4711, "Max", "Mustermann", 1990, "GER", "men").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.UpsertPlayer(context.Background(), player))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPlayerNotFound(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT itsf_id, first_name").
		WithArgs(1).
		WillReturnError(pgx.ErrNoRows)

	_, err := store.GetPlayer(context.Background(), 1)
	require.ErrorIs(t, err, rankings.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListPlayers(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	rows := pgxmock.NewRows([]string{"itsf_id", "first_name", "last_name"}).
		AddRow(1002, "Marie", "Dupont").
		AddRow(4711, "Max", "Mustermann")
	mock.ExpectQuery("SELECT itsf_id, first_name, last_name FROM players").
		WillReturnRows(rows)

	players, err := store.ListPlayers(context.Background())
	require.NoError(t, err)
	require.Equal(t, []rankings.PlayerSummary{
		{ITSFID: 1002, FirstName: "Marie", LastName: "Dupont"},
		{ITSFID: 4711, FirstName: "Max", LastName: "Mustermann"},
	}, players)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHasRanking(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("itsf", 2023, "open", "singles").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := store.HasRanking(context.Background(), rankings.SourceITSF, 2023, rankings.RankingOpen, rankings.ClassSingles)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertRankingCommitsHeaderAndEntries(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()
	ranking := rankings.Ranking{
		Source:    rankings.SourceITSF,
		Year:      2023,
		Category:  rankings.RankingOpen,
		Class:     rankings.ClassDoubles,
		QueriedAt: now,
		Entries: []rankings.RankingEntry{
			{Place: 1, PlayerID: 1001},
			{Place: 2, PlayerID: 1002},
		},
	}

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO rankings").
		WithArgs("itsf", 2023, "open", "doubles", now, 2).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectCopyFrom(
		pgx.Identifier{"ranking_entries"},
		[]string{"ranking_id", "place", "player_itsf_id"},
	).WillReturnResult(2)
	mock.ExpectCommit()
	mock.ExpectRollback()

	require.NoError(t, store.InsertRanking(context.Background(), ranking, false))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertRankingRowCountMismatchRollsBack(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()
	ranking := rankings.Ranking{
		Source:    rankings.SourceITSF,
		Year:      2023,
		Category:  rankings.RankingOpen,
		Class:     rankings.ClassSingles,
		QueriedAt: now,
		Entries: []rankings.RankingEntry{
			{Place: 1, PlayerID: 1001},
			{Place: 2, PlayerID: 1002},
		},
	}

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO rankings").
		WithArgs("itsf", 2023, "open", "singles", now, 2).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(8)))
	mock.ExpectCopyFrom(
		pgx.Identifier{"ranking_entries"},
		[]string{"ranking_id", "place", "player_itsf_id"},
	).WillReturnResult(1)
	mock.ExpectRollback()

	err := store.InsertRanking(context.Background(), ranking, false)
	require.ErrorIs(t, err, rankings.ErrBatchMismatch)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertRankingReplaceDeletesPrevious(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()
	ranking := rankings.Ranking{
		Source:    rankings.SourceDTFB,
		Year:      2022,
		Category:  rankings.RankingWomen,
		Class:     rankings.ClassSingles,
		QueriedAt: now,
		Entries:   []rankings.RankingEntry{{Place: 1, PlayerID: 2001}},
	}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM rankings").
		WithArgs("dtfb", 2022, "women", "singles").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectQuery("INSERT INTO rankings").
		WithArgs("dtfb", 2022, "women", "singles", now, 1).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(9)))
	mock.ExpectCopyFrom(
		pgx.Identifier{"ranking_entries"},
		[]string{"ranking_id", "place", "player_itsf_id"},
	).WillReturnResult(1)
	mock.ExpectCommit()
	mock.ExpectRollback()

	require.NoError(t, store.InsertRanking(context.Background(), ranking, true))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListRankings(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	rows := pgxmock.NewRows([]string{"source", "year", "category", "class", "place"}).
		AddRow("itsf", 2023, "open", "singles", 12).
		AddRow("itsf", 2022, "open", "doubles", 7)
	mock.ExpectQuery("SELECT r.source, r.year").
		WithArgs(4711).
		WillReturnRows(rows)

	placements, err := store.ListRankings(context.Background(), 4711)
	require.NoError(t, err)
	require.Len(t, placements, 2)
	require.Equal(t, rankings.PlayerPlacement{
		Source:   rankings.SourceITSF,
		Year:     2023,
		Category: rankings.RankingOpen,
		Class:    rankings.ClassSingles,
		Place:    12,
	}, placements[0])
	require.NoError(t, mock.ExpectationsWereMet())
}
