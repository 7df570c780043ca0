package worker

import (
	"context"

	"github.com/robfig/cron/v3"

	"sjsage522/hotissueworker/logger"
	apperrors "sjsage522/hotissueworker/pkg/errors"
)

// Serve runs a batch on every tick of the configured schedule until ctx is
// canceled. With RunAtStartup a batch also runs right away.
func (w *Worker) Serve(ctx context.Context) error {
	c := cron.New(
		cron.WithLocation(w.opts.Location),
		cron.WithLogger(cronLogger{log: w.log}),
	)
	if _, err := c.AddFunc(w.opts.Schedule, func() { w.RunBatch(ctx) }); err != nil {
		return apperrors.NewConfiguration("invalid crawl schedule "+w.opts.Schedule, err)
	}

	c.Start()
	w.log.Info().
		Str("schedule", w.opts.Schedule).
		Str("timezone", w.opts.Location.String()).
		Msg("Scheduler started")

	if w.opts.RunAtStartup {
		go w.RunBatch(ctx)
	}

	<-ctx.Done()
	w.log.Info().Msg("Scheduler stopping, waiting for the running batch")
	<-c.Stop().Done()

	// wait for a batch started at startup
	w.running.Lock()
	defer w.running.Unlock()
	return nil
}

// cronLogger sends cron's own messages to zerolog
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
