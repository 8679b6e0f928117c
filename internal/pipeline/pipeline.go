// Package pipeline orchestrates ingestion runs: enumerate ranking units,
// fetch and parse federation pages, persist batches, then backfill player
// profiles the rankings referenced.
//
// Failure policy follows one rule: a bad item never kills the run. Fetch and
// parse failures are logged to the run log and the affected unit is skipped.
// Only an unreachable store aborts the run, and even that only terminates the
// run, never the process.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/foosdb/rankingsd/internal/job"
	"github.com/foosdb/rankingsd/internal/metrics"
	"github.com/foosdb/rankingsd/internal/rankings"
	"github.com/foosdb/rankingsd/internal/scrape/dtfb"
	"github.com/foosdb/rankingsd/internal/scrape/itsf"
)

// DefaultMaxRank bounds how deep a ranking list is paged when the request
// does not say otherwise.
const DefaultMaxRank = 1000

// Pipeline wires the scrape/parse/persist stages together. One Pipeline
// serves the whole process; each run gets its own job.Handle.
type Pipeline struct {
	store     rankings.Store
	fetcher   rankings.Fetcher
	publisher rankings.Publisher
	logger    *zap.Logger
	topic     string
	now       func() time.Time
}

// New constructs a Pipeline. The topic names where run-completion events are
// published; an empty topic disables publishing.
func New(store rankings.Store, fetcher rankings.Fetcher, publisher rankings.Publisher, logger *zap.Logger, topic string) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		store:     store,
		fetcher:   fetcher,
		publisher: publisher,
		logger:    logger,
		topic:     topic,
		now:       time.Now,
	}
}

// RankingsParams selects which ranking units one run ingests. Every
// (year, category, class) combination is one unit, persisted independently.
type RankingsParams struct {
	Source     rankings.Source
	Years      []int
	Categories []rankings.RankingCategory
	Classes    []rankings.RankingClass
	MaxRank    int
	Force      bool
}

func (p RankingsParams) normalized() RankingsParams {
	if len(p.Categories) == 0 {
		p.Categories = rankings.AllRankingCategories()
	}
	if len(p.Classes) == 0 {
		p.Classes = rankings.AllRankingClasses()
	}
	if p.MaxRank <= 0 {
		p.MaxRank = DefaultMaxRank
	}
	return p
}

// EstimatedPages returns the page count a run would fetch with nothing
// skipped, used as the initial progress maximum.
func (p RankingsParams) EstimatedPages() int {
	p = p.normalized()
	units := len(p.Years) * len(p.Categories) * len(p.Classes)
	return units * pagesPerUnit(p.Source, p.MaxRank)
}

// RunEvent is the payload published after a run finishes.
type RunEvent struct {
	Kind           string    `json:"kind"`
	Source         string    `json:"source,omitempty"`
	RankingsStored int       `json:"rankings_stored,omitempty"`
	PlayersAdded   int       `json:"players_added"`
	FinishedAt     time.Time `json:"finished_at"`
}

func runStatus(err error) string {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "cancelled"
	}
	return "failed"
}

func pageSize(source rankings.Source) int {
	if source == rankings.SourceDTFB {
		return dtfb.PageSize
	}
	return itsf.PageSize
}

func rankingURL(source rankings.Source, year int, category rankings.RankingCategory, class rankings.RankingClass, page int) string {
	if source == rankings.SourceDTFB {
		return dtfb.RankingURL(year, category, class, page)
	}
	return itsf.RankingURL(year, category, class, page)
}

func parseRankingPage(source rankings.Source, body []byte) ([]rankings.RankingEntry, error) {
	if source == rankings.SourceDTFB {
		return dtfb.ParseRankingPage(body)
	}
	return itsf.ParseRankingPage(body)
}

func pagesPerUnit(source rankings.Source, maxRank int) int {
	size := pageSize(source)
	return (maxRank + size - 1) / size
}

// RankingsRun builds the work function for one rankings ingestion run.
func (pl *Pipeline) RankingsRun(params RankingsParams) job.WorkFunc {
	params = params.normalized()
	kind := fmt.Sprintf("rankings_%s", params.Source)

	return func(ctx context.Context, h *job.Handle) {
		h.Logf("starting %s rankings run: %d year(s), %d categories, %d classes, max rank %d",
			params.Source, len(params.Years), len(params.Categories), len(params.Classes), params.MaxRank)

		referenced := make(map[int]bool)
		stored := 0
		for _, year := range params.Years {
			for _, category := range params.Categories {
				for _, class := range params.Classes {
					if ctx.Err() != nil {
						h.Log("run cancelled")
						metrics.ObserveRun(kind, "cancelled")
						return
					}
					committed, err := pl.ingestUnit(ctx, h, params, year, category, class, referenced)
					if err != nil {
						metrics.ObserveRun(kind, runStatus(err))
						return
					}
					if committed {
						stored++
					}
				}
			}
		}

		added, err := pl.discoverPlayers(ctx, h, referenced)
		if err != nil {
			metrics.ObserveRun(kind, runStatus(err))
			return
		}

		h.Logf("run complete: %d ranking(s) stored, %d player(s) added", stored, added)
		metrics.ObserveRun(kind, "completed")
		pl.publishDone(ctx, h, RunEvent{
			Kind:           kind,
			Source:         string(params.Source),
			RankingsStored: stored,
			PlayersAdded:   added,
			FinishedAt:     pl.now().UTC(),
		})
	}
}

// ingestUnit pages through one (year, category, class) list and persists it
// as a single batch. A non-nil error means the run cannot continue; all other
// failures are logged and reported as committed=false.
func (pl *Pipeline) ingestUnit(
	ctx context.Context,
	h *job.Handle,
	params RankingsParams,
	year int,
	category rankings.RankingCategory,
	class rankings.RankingClass,
	referenced map[int]bool,
) (committed bool, err error) {
	pages := pagesPerUnit(params.Source, params.MaxRank)
	key := rankings.Ranking{Source: params.Source, Year: year, Category: category, Class: class}.Key()

	if !params.Force {
		has, err := pl.store.HasRanking(ctx, params.Source, year, category, class)
		if err != nil {
			if errors.Is(err, rankings.ErrStoreUnavailable) {
				h.Logf("store unavailable, aborting run: %v", err)
				return false, err
			}
			h.Logf("check ranking %s: %v", key, err)
			pl.skipPages(h, pages)
			return false, nil
		}
		if has {
			h.Logf("ranking %s already stored, skipping", key)
			pl.skipPages(h, pages)
			return false, nil
		}
	}

	var entries []rankings.RankingEntry
	size := pageSize(params.Source)
	for page := 1; page <= pages; page++ {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		url := rankingURL(params.Source, year, category, class, page)
		body, err := pl.fetcher.Fetch(ctx, url)
		if err != nil {
			metrics.ObserveScrapePage(string(params.Source), "error")
			h.Logf("fetch ranking %s page %d: %v", key, page, err)
			pl.skipPages(h, pages-page+1)
			return false, nil
		}
		metrics.ObserveScrapePage(string(params.Source), "ok")
		pageEntries, err := parseRankingPage(params.Source, body)
		if err != nil {
			h.Logf("parse ranking %s page %d: %v", key, page, err)
			pl.skipPages(h, pages-page+1)
			return false, nil
		}
		entries = append(entries, pageEntries...)
		h.Advance()
		if len(pageEntries) < size {
			pl.skipPages(h, pages-page)
			break
		}
	}
	if len(entries) > params.MaxRank {
		entries = entries[:params.MaxRank]
	}
	if len(entries) == 0 {
		h.Logf("ranking %s has no entries, skipping", key)
		return false, nil
	}

	ranking := rankings.Ranking{
		Source:    params.Source,
		Year:      year,
		Category:  category,
		Class:     class,
		QueriedAt: pl.now().UTC(),
		Entries:   entries,
	}
	if err := pl.store.InsertRanking(ctx, ranking, params.Force); err != nil {
		switch {
		case errors.Is(err, rankings.ErrStoreUnavailable):
			h.Logf("store unavailable, aborting run: %v", err)
			return false, err
		case errors.Is(err, rankings.ErrBatchMismatch):
			h.Logf("ranking %s rolled back: %v", key, err)
			return false, nil
		default:
			h.Logf("store ranking %s: %v", key, err)
			return false, nil
		}
	}
	metrics.ObserveRankingStored(string(params.Source))
	for _, entry := range entries {
		referenced[entry.PlayerID] = true
	}
	h.Logf("stored ranking %s with %d entries", key, len(entries))
	return true, nil
}

// discoverPlayers backfills profiles for players the stored rankings
// reference but the players table does not yet contain.
func (pl *Pipeline) discoverPlayers(ctx context.Context, h *job.Handle, referenced map[int]bool) (int, error) {
	if len(referenced) == 0 {
		return 0, nil
	}
	ids, err := pl.store.ListPlayerIDs(ctx)
	if err != nil {
		if errors.Is(err, rankings.ErrStoreUnavailable) {
			h.Logf("store unavailable, aborting run: %v", err)
			return 0, err
		}
		h.Logf("list known players: %v", err)
		return 0, nil
	}
	known := make(map[int]bool, len(ids))
	for _, id := range ids {
		known[id] = true
	}
	var missing []int
	for id := range referenced {
		if !known[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return 0, nil
	}
	sort.Ints(missing)

	progress, max := h.Progress()
	h.SetProgress(progress, max+len(missing))
	h.Logf("fetching %d missing player profile(s)", len(missing))

	added := 0
	for _, id := range missing {
		if ctx.Err() != nil {
			h.Log("run cancelled")
			return added, ctx.Err()
		}
		upserted, err := pl.ingestPlayer(ctx, h, id)
		if err != nil {
			return added, err
		}
		if upserted {
			added++
		}
		h.Advance()
	}
	return added, nil
}

// PlayersRun builds the work function for one player profile ingestion run.
// Without force, players already stored are skipped.
func (pl *Pipeline) PlayersRun(ids []int, force bool) job.WorkFunc {
	return func(ctx context.Context, h *job.Handle) {
		h.Logf("starting players run: %d profile(s)", len(ids))
		h.SetProgress(0, len(ids))

		added := 0
		for _, id := range ids {
			if ctx.Err() != nil {
				h.Log("run cancelled")
				metrics.ObserveRun("players", "cancelled")
				return
			}
			if !force {
				_, err := pl.store.GetPlayer(ctx, id)
				switch {
				case err == nil:
					h.Logf("player %d already stored, skipping", id)
					h.Advance()
					continue
				case errors.Is(err, rankings.ErrNotFound):
				case errors.Is(err, rankings.ErrStoreUnavailable):
					h.Logf("store unavailable, aborting run: %v", err)
					metrics.ObserveRun("players", "failed")
					return
				default:
					h.Logf("check player %d: %v", id, err)
				}
			}
			upserted, err := pl.ingestPlayer(ctx, h, id)
			if err != nil {
				metrics.ObserveRun("players", "failed")
				return
			}
			if upserted {
				added++
			}
			h.Advance()
		}

		h.Logf("run complete: %d player(s) written", added)
		metrics.ObserveRun("players", "completed")
		pl.publishDone(ctx, h, RunEvent{
			Kind:         "players",
			PlayersAdded: added,
			FinishedAt:   pl.now().UTC(),
		})
	}
}

// ingestPlayer fetches, parses and upserts one profile. Profiles only exist
// on the international site, whichever source referenced the license. A
// non-nil error means the run cannot continue.
func (pl *Pipeline) ingestPlayer(ctx context.Context, h *job.Handle, itsfID int) (bool, error) {
	body, err := pl.fetcher.Fetch(ctx, itsf.PlayerURL(itsfID))
	if err != nil {
		metrics.ObserveScrapePage(string(rankings.SourceITSF), "error")
		h.Logf("fetch player %d: %v", itsfID, err)
		return false, nil
	}
	metrics.ObserveScrapePage(string(rankings.SourceITSF), "ok")

	player, warnings, err := itsf.ParsePlayer(body, itsfID)
	if err != nil {
		h.Logf("parse player %d: %v", itsfID, err)
		return false, nil
	}
	for _, warning := range warnings {
		h.Log(warning)
	}

	if err := pl.store.UpsertPlayer(ctx, player); err != nil {
		if errors.Is(err, rankings.ErrStoreUnavailable) {
			h.Logf("store unavailable, aborting run: %v", err)
			return false, err
		}
		h.Logf("store player %d: %v", itsfID, err)
		return false, nil
	}
	metrics.ObservePlayerUpserted()
	return true, nil
}

func (pl *Pipeline) skipPages(h *job.Handle, n int) {
	if n <= 0 {
		return
	}
	progress, _ := h.Progress()
	h.SetProgress(progress+n, 0)
}

// publishDone emits the completion event. Publish failures are logged and
// otherwise ignored; the run already succeeded.
func (pl *Pipeline) publishDone(ctx context.Context, h *job.Handle, event RunEvent) {
	if pl.publisher == nil || pl.topic == "" {
		return
	}
	id, err := pl.publisher.Publish(ctx, pl.topic, event)
	if err != nil {
		h.Logf("publish completion event: %v", err)
		pl.logger.Warn("publish completion event failed", zap.Error(err))
		return
	}
	pl.logger.Info("published completion event", zap.String("topic", pl.topic), zap.String("message_id", id))
}
