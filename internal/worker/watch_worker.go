package worker

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/GTDGit/pricewatch/internal/service"
	"github.com/GTDGit/pricewatch/internal/utils"
)

// CrawlRunner is the part of service.MonitorService the watch worker drives.
type CrawlRunner interface {
	RunCrawl(ctx context.Context, target service.Target) (*service.CrawlResult, error)
}

// WatchWorker periodically crawls a fixed list of targets so that every
// source set gets a fresh snapshot and alerts are raised without a caller.
type WatchWorker struct {
	runner   CrawlRunner
	targets  []service.Target
	interval time.Duration
}

// DefaultInterval replaces a non-positive interval.
const DefaultInterval = time.Hour

// NewWatchWorker constructs a WatchWorker.
func NewWatchWorker(runner CrawlRunner, targets []service.Target, interval time.Duration) *WatchWorker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &WatchWorker{
		runner:   runner,
		targets:  targets,
		interval: interval,
	}
}

// ParseWatchTargets turns WATCH_TARGETS entries into targets. An entry is
// "site:query", a bare query searched on every site, or a product URL.
func ParseWatchTargets(entries []string) []service.Target {
	targets := make([]service.Target, 0, len(entries))
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if strings.HasPrefix(e, "http://") || strings.HasPrefix(e, "https://") {
			targets = append(targets, service.Target{Query: e})
			continue
		}
		site, query, ok := strings.Cut(e, ":")
		site = strings.TrimSpace(site)
		if ok && site != "" && !strings.ContainsAny(site, " \t") {
			targets = append(targets, service.Target{Query: strings.TrimSpace(query), Sites: []string{site}})
			continue
		}
		targets = append(targets, service.Target{Query: e})
	}
	return targets
}

// Start runs one round immediately, then one per interval until ctx is done.
func (w *WatchWorker) Start(ctx context.Context) {
	log.Info().Dur("interval", w.interval).Int("targets", len(w.targets)).Msg("Starting watch worker")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.run(ctx)
	for {
		select {
		case <-ticker.C:
			w.run(ctx)
		case <-ctx.Done():
			log.Info().Msg("Watch worker stopped")
			return
		}
	}
}

func (w *WatchWorker) run(ctx context.Context) {
	for _, t := range w.targets {
		if ctx.Err() != nil {
			return
		}
		start := time.Now()
		res, err := w.runner.RunCrawl(ctx, t)
		if err != nil {
			ev := log.Error()
			if errors.Is(err, utils.ErrAllCrawlersFailed) || errors.Is(err, utils.ErrJobCancelled) {
				ev = log.Warn()
			}
			ev.Err(err).Str("query", t.Query).Strs("sites", t.Sites).Msg("Watch crawl failed")
			continue
		}
		log.Info().
			Str("query", t.Query).
			Str("job_id", res.JobID).
			Int("products", res.ProductsFound).
			Int("alerts", len(res.Alerts)).
			Dur("duration", time.Since(start)).
			Msg("Watch crawl completed")
	}
}
