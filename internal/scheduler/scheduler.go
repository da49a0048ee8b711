// Package scheduler runs the periodic poll cycle: fetch every source, drop
// entries that were already dispatched, and notify matching subscribers.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"newsbot/internal/bot"
	"newsbot/internal/fetcher"
	"newsbot/internal/filter"
	"newsbot/internal/model"
	"newsbot/internal/storage"
)

const (
	defaultInterval   = 600 * time.Second
	defaultStartDelay = 5 * time.Second
	defaultSendDelay  = 50 * time.Millisecond
)

// Fetcher returns the entries of a feed in feed order.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]model.Entry, error)
}

// Notifier delivers a text message to a user.
type Notifier interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// Store is the part of the storage the poll cycle reads and writes.
type Store interface {
	storage.EntryStore
	AllUsers(ctx context.Context) ([]int64, error)
	Sources(ctx context.Context, userID int64) ([]string, error)
	Categories(ctx context.Context, userID int64, source string) ([]string, error)
}

// CycleStats summarizes one poll cycle.
type CycleStats struct {
	Sources      int
	Failed       int
	Entries      int
	New          int
	Sent         int
	SendFailures int
}

// Scheduler periodically polls the configured sources and sends notifications.
type Scheduler struct {
	store    Store
	fetcher  Fetcher
	notifier Notifier
	catalog  model.Catalog
	log      *slog.Logger

	interval   time.Duration
	startDelay time.Duration
	sendDelay  time.Duration

	// mu keeps cycles from overlapping.
	mu sync.Mutex
}

// New creates a Scheduler that fetches feeds with the default HTTP client.
func New(store Store, catalog model.Catalog, notifier Notifier, log *slog.Logger) *Scheduler {
	return NewWithFetcher(store, catalog, fetcher.New(http.DefaultClient), notifier, log)
}

// NewWithFetcher creates a Scheduler with a custom fetcher (useful for testing).
func NewWithFetcher(store Store, catalog model.Catalog, f Fetcher, notifier Notifier, log *slog.Logger) *Scheduler {
	return &Scheduler{
		store:      store,
		fetcher:    f,
		notifier:   notifier,
		catalog:    catalog,
		log:        log,
		interval:   defaultInterval,
		startDelay: defaultStartDelay,
		sendDelay:  defaultSendDelay,
	}
}

// SetInterval overrides the time between cycles.
func (s *Scheduler) SetInterval(d time.Duration) {
	s.interval = d
}

// SetStartDelay overrides the wait before the first cycle.
func (s *Scheduler) SetStartDelay(d time.Duration) {
	s.startDelay = d
}

// SetSendDelay overrides the pause after each notification.
func (s *Scheduler) SetSendDelay(d time.Duration) {
	s.sendDelay = d
}

// Run starts the scheduler loop, blocking until ctx is cancelled. The first
// cycle runs after the start delay, then one per interval. A cycle that
// overruns the interval swallows the missed ticks instead of queueing them.
func (s *Scheduler) Run(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(s.startDelay):
	}
	s.safeCycle(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.safeCycle(ctx)
		}
	}
}

func (s *Scheduler) safeCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("poll cycle panicked", "panic", r)
		}
	}()
	s.RunCycle(ctx)
}

// RunCycle performs one full pass over all sources. Failures are logged and
// never stop the remaining sources. Cancelling ctx stops the cycle before the
// next source.
func (s *Scheduler) RunCycle(ctx context.Context) CycleStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	var stats CycleStats
	for _, src := range s.catalog {
		if ctx.Err() != nil {
			break
		}
		stats.Sources++
		if err := s.processSource(ctx, src, &stats); err != nil {
			stats.Failed++
			s.log.Error("process source", "source", src.Name, "url", src.URL, "error", err)
		}
	}

	s.log.Info("poll cycle finished",
		"sources", stats.Sources,
		"failed", stats.Failed,
		"entries", stats.Entries,
		"new", stats.New,
		"sent", stats.Sent,
		"send_failures", stats.SendFailures,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return stats
}

type subscriber struct {
	userID     int64
	categories []string
}

func (s *Scheduler) processSource(ctx context.Context, src model.Source, stats *CycleStats) error {
	s.log.Debug("checking source", "source", src.Name)

	entries, err := s.fetcher.Fetch(ctx, src.URL)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}

	subs, err := s.subscribers(ctx, src.Name)
	if err != nil {
		return fmt.Errorf("load subscribers: %w", err)
	}

	for _, entry := range entries {
		entry.Source = src.Name
		stats.Entries++

		seen, err := s.store.HasEntry(ctx, entry.Link)
		if err != nil {
			return fmt.Errorf("check sent %q: %w", entry.Link, err)
		}
		if seen {
			continue
		}
		stats.New++

		s.dispatch(ctx, entry, subs, stats)

		if err := s.store.RecordEntry(ctx, entry.Link); err != nil {
			return fmt.Errorf("record sent %q: %w", entry.Link, err)
		}
	}
	return nil
}

// subscribers loads every user who selected the source, with their
// categories for it.
func (s *Scheduler) subscribers(ctx context.Context, source string) ([]subscriber, error) {
	users, err := s.store.AllUsers(ctx)
	if err != nil {
		return nil, err
	}

	var subs []subscriber
	for _, u := range users {
		sources, err := s.store.Sources(ctx, u)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(sources, source) {
			continue
		}
		cats, err := s.store.Categories(ctx, u, source)
		if err != nil {
			return nil, err
		}
		subs = append(subs, subscriber{userID: u, categories: cats})
	}
	return subs, nil
}

func (s *Scheduler) dispatch(ctx context.Context, entry model.Entry, subs []subscriber, stats *CycleStats) {
	msg := bot.FormatNotification(entry)
	for _, sub := range subs {
		if !filter.Matches(entry, sub.categories) {
			continue
		}
		if err := s.notifier.Send(ctx, sub.userID, msg); err != nil {
			stats.SendFailures++
			s.log.Error("send notification", "chat_id", sub.userID, "link", entry.Link, "error", err)
		} else {
			stats.Sent++
		}

		// Rate limit: ~20 messages/sec max for Telegram
		if s.sendDelay > 0 {
			time.Sleep(s.sendDelay)
		}
	}
}
