package crawler

import (
	"context"
	"math/rand"
	"time"

	"sjsage522/hotissueworker/internal/model"
	"sjsage522/hotissueworker/logger"
)

// StopReason tells why a crawl loop ended
type StopReason string

const (
	StopPageMisses StopReason = "page_misses"
	StopPostMisses StopReason = "post_misses"
	StopMaxPages   StopReason = "max_pages"
	StopDeadline   StopReason = "deadline"
	StopCanceled   StopReason = "canceled"
)

// Delay is a randomized pause between Min and Max
type Delay struct {
	Min time.Duration
	Max time.Duration
}

func (d Delay) pick() time.Duration {
	if d.Max <= d.Min {
		return d.Min
	}
	return d.Min + time.Duration(rand.Int63n(int64(d.Max-d.Min)+1))
}

// EngineConfig bounds one crawl
type EngineConfig struct {
	PageMissThreshold int
	PostMissThreshold int
	MaxPages          int
	MaxDuration       time.Duration
	MinViews          int
	VerifyDetailDate  bool
	PageDelay         Delay
	PostDelay         Delay
}

// DefaultEngineConfig returns the stock limits
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		PageMissThreshold: 3,
		PostMissThreshold: 3,
		MaxPages:          10,
		MaxDuration:       1100 * time.Second,
		PageDelay:         Delay{Min: 3 * time.Second, Max: 7 * time.Second},
		PostDelay:         Delay{Min: 1 * time.Second, Max: 3 * time.Second},
	}
}

// CrawlState is the mutable state of one crawl
type CrawlState struct {
	PageMissStreak int
	PostMissStreak int
	PagesVisited   int
	StartTime      time.Time
}

// CrawlResult is the outcome of Engine.Run
type CrawlResult struct {
	Posts        []model.RawPost
	Reason       StopReason
	PagesVisited int
	DetailErrors int
	Elapsed      time.Duration
}

// Engine drives a ListingSource page by page until a stop condition fires
type Engine struct {
	cfg     EngineConfig
	loc     *time.Location
	now     func() time.Time
	sleep   func(context.Context, time.Duration) error
	isToday func(time.Time) bool
	log     *logger.Logger
}

// NewEngine creates an engine judging "today" in loc
func NewEngine(cfg EngineConfig, loc *time.Location) *Engine {
	if loc == nil {
		loc = time.Local
	}
	e := &Engine{
		cfg:   cfg,
		loc:   loc,
		now:   time.Now,
		sleep: sleepCtx,
		log:   logger.ForCrawler("engine"),
	}
	e.isToday = func(t time.Time) bool { return SameDay(t, e.now(), e.loc) }
	return e
}

// WithClock replaces the clock
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// WithSleep replaces the pause between requests
func (e *Engine) WithSleep(sleep func(context.Context, time.Duration) error) *Engine {
	e.sleep = sleep
	return e
}

// WithLogger replaces the engine logger
func (e *Engine) WithLogger(l *logger.Logger) *Engine {
	e.log = l
	return e
}

// Run crawls src. It never returns an error: fetch failures count as misses
// and the result always carries the posts accepted so far.
func (e *Engine) Run(ctx context.Context, src ListingSource) CrawlResult {
	state := &CrawlState{StartTime: e.now()}
	seen := make(map[string]struct{})
	var result CrawlResult

	finish := func(reason StopReason) CrawlResult {
		result.Reason = reason
		result.PagesVisited = state.PagesVisited
		result.Elapsed = e.now().Sub(state.StartTime)
		e.log.Info().
			Str("reason", string(reason)).
			Int("pages", state.PagesVisited).
			Int("posts", len(result.Posts)).
			Dur("elapsed", result.Elapsed).
			Msg("Crawl finished")
		return result
	}

	for page := 1; ; page++ {
		if reason, stop := e.bounded(ctx, state); stop {
			return finish(reason)
		}

		listings, err := src.FetchPage(ctx, page)
		state.PagesVisited++
		if err != nil {
			e.log.Warn().Err(err).Int("page", page).Msg("Page fetch failed")
		}

		candidates := false
		for _, l := range listings {
			if reason, stop := e.bounded(ctx, state); stop {
				return finish(reason)
			}

			dated := !l.PostedAt.IsZero()
			if dated && !e.isToday(l.PostedAt) {
				continue
			}
			if !dated && !e.cfg.VerifyDetailDate {
				continue
			}
			candidates = true

			if _, dup := seen[l.Post.Link]; dup && l.Post.Link != "" {
				continue
			}
			if l.Views < e.cfg.MinViews {
				continue
			}

			if err := e.sleep(ctx, e.cfg.PostDelay.pick()); err != nil {
				return finish(StopCanceled)
			}

			detail, err := src.FetchDetail(ctx, l)
			if err != nil {
				result.DetailErrors++
				e.log.Warn().Err(err).Str("link", l.Post.Link).Msg("Detail fetch failed")
			}

			if e.cfg.VerifyDetailDate {
				if err != nil || detail.PostedAt.IsZero() || !e.isToday(detail.PostedAt) {
					state.PostMissStreak++
					if state.PostMissStreak >= e.cfg.PostMissThreshold {
						return finish(StopPostMisses)
					}
					continue
				}
				state.PostMissStreak = 0
			} else if err != nil {
				continue
			}

			seen[l.Post.Link] = struct{}{}
			result.Posts = append(result.Posts, merge(l, detail))
		}

		if candidates {
			state.PageMissStreak = 0
		} else {
			state.PageMissStreak++
			e.log.Debug().
				Int("page", page).
				Int("streak", state.PageMissStreak).
				Msg("No posts from today on page")
			if state.PageMissStreak >= e.cfg.PageMissThreshold {
				return finish(StopPageMisses)
			}
		}

		if e.cfg.MaxPages > 0 && state.PagesVisited >= e.cfg.MaxPages {
			return finish(StopMaxPages)
		}

		if err := e.sleep(ctx, e.cfg.PageDelay.pick()); err != nil {
			return finish(StopCanceled)
		}
	}
}

// bounded checks the limits that apply between any two requests
func (e *Engine) bounded(ctx context.Context, state *CrawlState) (StopReason, bool) {
	if ctx.Err() != nil {
		return StopCanceled, true
	}
	if e.cfg.MaxDuration > 0 && e.now().Sub(state.StartTime) >= e.cfg.MaxDuration {
		return StopDeadline, true
	}
	return "", false
}

func merge(l Listing, d Detail) model.RawPost {
	post := l.Post
	if d.Content != "" {
		post.Content = d.Content
	}
	if d.Images != nil {
		post.Images = d.Images
	}
	if !d.PostedAt.IsZero() {
		post.Date = d.PostedAt.Format(model.RegDateLayout)
	} else if !l.PostedAt.IsZero() && post.Date == "" {
		post.Date = l.PostedAt.Format(model.RegDateLayout)
	}
	if post.Writer == "" {
		post.Writer = d.Writer
	}
	return post
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
