package index

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gorhill/cronexpr"
)

// Scheduler rebuilds the index from the corpus file on a cron schedule, so a
// refreshed guidebook on disk is picked up without a restart.
type Scheduler struct {
	Index      *Index
	CorpusPath string
	CronSpec   string
	EmbedBatch int
	Stop       chan struct{}

	mu      sync.Mutex
	lastRun *time.Time
	logger  *log.Logger
}

func NewScheduler(ix *Index, corpusPath, cronSpec string, embedBatch int) *Scheduler {
	return &Scheduler{
		Index:      ix,
		CorpusPath: corpusPath,
		CronSpec:   cronSpec,
		EmbedBatch: embedBatch,
		Stop:       make(chan struct{}),
		logger:     log.New(log.Writer(), "[INDEX] ", log.LstdFlags),
	}
}

func (s *Scheduler) Start() {
	ticker := time.NewTicker(time.Minute)
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
	s.mu.Lock()
	due := isDue(s.CronSpec, s.lastRun)
	s.mu.Unlock()
	if !due {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	if err := s.Index.LoadCorpus(ctx, s.CorpusPath, s.EmbedBatch); err != nil {
		s.logger.Printf("scheduled rebuild failed: %v", err)
		return
	}

	now := time.Now()
	s.mu.Lock()
	s.lastRun = &now
	s.mu.Unlock()
}

func isDue(cronSpec string, last *time.Time) bool {
	now := time.Now()
	switch cronSpec {
	case "@daily":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= 24*time.Hour
	case "@hourly":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= time.Hour
	default:
		expr, err := cronexpr.Parse(cronSpec)
		if err != nil {
			// treat an invalid spec as @daily
			if last == nil {
				return true
			}
			return now.Sub(*last) >= 24*time.Hour
		}
		if last == nil {
			return true
		}
		next := expr.Next(*last)
		return !next.After(now)
	}
}
