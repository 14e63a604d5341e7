package server

import (
	"context"
	"log"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/redis/go-redis/v9"

	"github.com/fintrack/fintrack/internal/store"
)

type recurringStore interface {
	ListRecurringTransactions(ctx context.Context) ([]store.Transaction, error)
	MaterializeRecurring(ctx context.Context, templateID string, occurredAt time.Time) error
}

// Scheduler materializes recurring transactions (salary, rent, subscriptions)
// on their cron schedule. The redis lock keeps multiple replicas from
// inserting the same occurrence twice.
type Scheduler struct {
	Store    recurringStore
	Rdb      *redis.Client
	Interval time.Duration
	Stop     chan struct{}
	Logger   *log.Logger
}

func (s *Scheduler) Start() {
	if s.Logger == nil {
		s.Logger = log.New(log.Writer(), "[SCHED] ", log.LstdFlags)
	}
	if s.Interval <= 0 {
		s.Interval = time.Hour
	}
	ticker := time.NewTicker(s.Interval)
	go func() {
		for {
			select {
			case <-s.Stop:
				ticker.Stop()
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()
}

func (s *Scheduler) tick() {
	ctx := context.Background()
	templates, err := s.Store.ListRecurringTransactions(ctx)
	if err != nil {
		s.Logger.Printf("listing recurring transactions: %v", err)
		return
	}
	now := time.Now()
	for _, t := range templates {
		last := t.LastRecurredAt
		if last == nil {
			last = &t.OccurredAt
		}
		if !isDue(t.RecurrenceCron, last, now) {
			continue
		}

		if s.Rdb != nil {
			lockKey := "fintrack:recur:lock:" + t.ID
			ok, err := s.Rdb.SetNX(ctx, lockKey, "1", 2*time.Minute).Result()
			if err != nil {
				s.Logger.Printf("recurrence lock %s: %v", t.ID, err)
				continue
			}
			if !ok {
				continue
			}
		}

		if err := s.Store.MaterializeRecurring(ctx, t.ID, now); err != nil {
			s.Logger.Printf("materializing %s: %v", t.ID, err)
			continue
		}
		s.Logger.Printf("materialized recurring transaction %s (%s %s)", t.ID, t.Kind, t.Category)
	}
}

// isDue reports whether a template with cronSpec should fire, given its last
// occurrence. Supports @hourly/@daily/@weekly/@monthly shortcuts and 5-field
// cron expressions; an unparseable spec degrades to @daily.
func isDue(cronSpec string, last *time.Time, now time.Time) bool {
	switch cronSpec {
	case "@hourly":
		return last == nil || now.Sub(*last) >= time.Hour
	case "@daily":
		return last == nil || now.Sub(*last) >= 24*time.Hour
	case "@weekly":
		return last == nil || now.Sub(*last) >= 7*24*time.Hour
	case "@monthly":
		return last == nil || now.Sub(*last) >= 28*24*time.Hour
	}
	expr, err := cronexpr.Parse(cronSpec)
	if err != nil {
		return last == nil || now.Sub(*last) >= 24*time.Hour
	}
	if last == nil {
		return true
	}
	next := expr.Next(*last)
	return !next.IsZero() && !next.After(now)
}
