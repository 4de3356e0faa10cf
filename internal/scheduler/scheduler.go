package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tazhate/outlookcal/internal/service"
)

// Scheduler periodically re-fetches the calendar windows from Outlook so
// edits made in other clients show up without a manual refresh.
type Scheduler struct {
	cron     *cron.Cron
	sync     *service.SyncService
	interval time.Duration
}

func New(sync *service.SyncService, loc *time.Location, interval time.Duration) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithLocation(loc)),
		sync:     sync,
		interval: interval,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddFunc(spec, func() { s.refresh(ctx) }); err != nil {
		return fmt.Errorf("add refresh job: %w", err)
	}

	s.cron.Start()
	log.Printf("Scheduler started (refresh every %s)", s.interval)

	<-ctx.Done()
	return nil
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Println("Scheduler stopped")
}

func (s *Scheduler) refresh(ctx context.Context) {
	if err := s.sync.LoadWeek(ctx); err != nil {
		log.Printf("Background refresh failed: %v", err)
		return
	}
	if err := s.sync.LoadSurrounding(ctx); err != nil {
		log.Printf("Background refresh failed: %v", err)
	}
}
