package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"sjsage522/hotissueworker/config"
	"sjsage522/hotissueworker/internal/crawler"
	"sjsage522/hotissueworker/internal/model"
	"sjsage522/hotissueworker/internal/reconciler"
	"sjsage522/hotissueworker/logger"
	apperrors "sjsage522/hotissueworker/pkg/errors"
	"sjsage522/hotissueworker/services/export"
	"sjsage522/hotissueworker/services/publisher"
)

// Ingester applies a run's posts to storage
type Ingester interface {
	Reconcile(ctx context.Context, domain model.Domain, raws []model.RawPost, runID string) (reconciler.Result, error)
}

// Options tune the worker
type Options struct {
	Engine       crawler.EngineConfig
	Location     *time.Location
	DataDir      string
	Cooldown     time.Duration
	RunTimeout   time.Duration
	Schedule     string
	RunAtStartup bool
}

// OptionsFromConfig builds Options from the loaded configuration
func OptionsFromConfig(cfg *config.Config, loc *time.Location) Options {
	engine := crawler.DefaultEngineConfig()
	engine.PageMissThreshold = cfg.PageMissThreshold
	engine.PostMissThreshold = cfg.PostMissThreshold
	engine.MaxDuration = cfg.MaxCrawlDuration

	return Options{
		Engine:       engine,
		Location:     loc,
		DataDir:      cfg.DataDir,
		Cooldown:     cfg.AdapterCooldown,
		RunTimeout:   cfg.RunTimeout,
		Schedule:     cfg.CrawlSchedule,
		RunAtStartup: cfg.RunAtStartup,
	}
}

// RunReport is the outcome of one adapter run
type RunReport struct {
	Site      string
	Domain    model.Domain
	RunID     string
	Reason    crawler.StopReason
	Crawled   int
	CSVPath   string
	Result    reconciler.Result
	Published int
	Elapsed   time.Duration
	Err       error
}

// BatchReport collects the runs of one schedule slot
type BatchReport struct {
	Runs []RunReport
}

// Failed returns the number of failed runs
func (b BatchReport) Failed() int {
	n := 0
	for _, r := range b.Runs {
		if r.Err != nil {
			n++
		}
	}
	return n
}

// Worker handles the crawling, ingestion and publishing process
type Worker struct {
	crawlers  []crawler.Crawler
	ingester  Ingester
	publisher publisher.Publisher
	opts      Options
	log       *logger.Logger

	now      func() time.Time
	sleep    func(context.Context, time.Duration) error
	newRunID func() string

	running sync.Mutex
}

// NewWorker creates a new worker. pub may be nil to disable events.
func NewWorker(crawlers []crawler.Crawler, ingester Ingester, pub publisher.Publisher, opts Options) *Worker {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Worker{
		crawlers:  crawlers,
		ingester:  ingester,
		publisher: pub,
		opts:      opts,
		log:       logger.ForWorker(),
		now:       time.Now,
		sleep:     sleepCtx,
		newRunID:  uuid.NewString,
	}
}

// RunBatch runs every crawler one after another, pausing between them. A
// failed run never stops the batch. It returns false without running when
// another batch is still in progress.
func (w *Worker) RunBatch(ctx context.Context) (BatchReport, bool) {
	if !w.running.TryLock() {
		w.log.Warn().Msg("Previous batch still running, skipping slot")
		return BatchReport{}, false
	}
	defer w.running.Unlock()

	start := w.now()
	w.log.Info().Int("crawlers", len(w.crawlers)).Msg("Batch started")

	var report BatchReport
	for i, c := range w.crawlers {
		if ctx.Err() != nil {
			break
		}
		if i > 0 && w.opts.Cooldown > 0 {
			if err := w.sleep(ctx, w.opts.Cooldown); err != nil {
				break
			}
		}
		report.Runs = append(report.Runs, w.runOne(ctx, c))
	}

	if w.publisher != nil {
		if err := w.publisher.TrimStreams(ctx); err != nil {
			logger.LogError("StreamTrimming", err, "trim streams")
		}
	}

	ev := w.log.Info()
	if report.Failed() > 0 {
		ev = w.log.Warn()
	}
	ev.Int("runs", len(report.Runs)).
		Int("failed", report.Failed()).
		Dur("elapsed", w.now().Sub(start)).
		Msg("Batch finished")
	return report, true
}

// runOne crawls one site under the run timeout, then exports and ingests
// what it accepted. A run that times out is not ingested.
func (w *Worker) runOne(ctx context.Context, c crawler.Crawler) (report RunReport) {
	report = RunReport{
		Site:   c.GetName(),
		Domain: c.GetDomain(),
		RunID:  w.newRunID(),
	}
	log := logger.ForRun(report.Site, report.RunID)
	start := w.now()
	defer func() { report.Elapsed = w.now().Sub(start) }()

	res, err := w.crawl(ctx, c, log)
	if err != nil {
		report.Err = err
		log.Error().Err(err).Msg("Run failed")
		return report
	}
	report.Reason = res.Reason
	report.Crawled = len(res.Posts)

	if len(res.Posts) == 0 {
		log.Info().Str("reason", string(res.Reason)).Msg("Nothing to ingest")
		return report
	}

	path := export.FilePath(w.opts.DataDir, report.Site, w.now().In(w.opts.Location))
	if err := export.WriteFile(path, res.Posts); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("CSV export failed")
	} else {
		report.CSVPath = path
	}

	report.Result, report.Published, report.Err = w.ingest(ctx, report.Domain, res.Posts, report.RunID)
	if report.Err != nil {
		log.Error().Err(report.Err).Msg("Run failed")
		return report
	}

	log.Info().
		Str("reason", string(res.Reason)).
		Int("crawled", report.Crawled).
		Int("inserted", report.Result.Inserted).
		Int("updated", report.Result.Updated).
		Int("published", report.Published).
		Msg("Run finished")
	return report
}

// crawl runs the engine and abandons it once the run timeout passes
func (w *Worker) crawl(ctx context.Context, c crawler.Crawler, log *logger.Logger) (crawler.CrawlResult, error) {
	runCtx, cancel := context.WithTimeout(ctx, w.opts.RunTimeout)
	defer cancel()

	engine := crawler.NewEngine(c.Tune(w.opts.Engine), w.opts.Location).
		WithClock(w.now).
		WithSleep(w.sleep).
		WithLogger(log)

	done := make(chan crawler.CrawlResult, 1)
	go func() {
		done <- engine.Run(runCtx, c)
	}()

	var res crawler.CrawlResult
	select {
	case res = <-done:
	case <-runCtx.Done():
	}

	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return crawler.CrawlResult{}, apperrors.NewTimeout(c.GetName(), w.opts.RunTimeout)
	case ctx.Err() != nil:
		return crawler.CrawlResult{}, fmt.Errorf("run %s: %w", c.GetName(), ctx.Err())
	}
	return res, nil
}

// ingest reconciles posts and publishes the committed changes. A publish
// failure is logged; the batch is already committed.
func (w *Worker) ingest(ctx context.Context, domain model.Domain, posts []model.RawPost, runID string) (reconciler.Result, int, error) {
	res, err := w.ingester.Reconcile(ctx, domain, posts, runID)
	if err != nil {
		return res, 0, err
	}
	if w.publisher == nil || len(res.Events) == 0 {
		return res, 0, nil
	}

	published, err := publisher.PublishEvents(ctx, w.publisher, res.Events)
	if err != nil {
		w.log.Warn().Err(err).Str("run_id", runID).Int("published", published).Msg("Publishing events failed")
	}
	return res, published, nil
}

// IngestFile reconciles a CSV written by an earlier run into domain
func (w *Worker) IngestFile(ctx context.Context, path string, domain model.Domain) (reconciler.Result, error) {
	posts, err := export.ReadFile(path)
	if err != nil {
		return reconciler.Result{}, fmt.Errorf("read %s: %w", path, err)
	}

	runID := w.newRunID()
	res, published, err := w.ingest(ctx, domain, posts, runID)
	if err != nil {
		return res, err
	}
	if w.publisher != nil {
		if err := w.publisher.TrimStreams(ctx); err != nil {
			logger.LogError("StreamTrimming", err, "trim streams")
		}
	}

	w.log.Info().
		Str("path", path).
		Str("run_id", runID).
		Int("records", len(posts)).
		Int("inserted", res.Inserted).
		Int("updated", res.Updated).
		Int("rejected", res.Rejected).
		Int("published", published).
		Msg("File ingested")
	return res, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
