// Package scheduler replays the negotiation on a cron schedule, for kiosk
// style unattended demos.
package scheduler

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// Handler is the callback invoked each time the schedule fires.
type Handler func()

// Scheduler fires a handler on a cron expression.
type Scheduler struct {
	handler Handler

	mu       sync.Mutex
	schedule string
	cron     *cron.Cron
}

// cronParser accepts both standard 5-field cron expressions and 6-field
// expressions with an optional seconds field.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Validate reports whether schedule is a valid cron expression.
func Validate(schedule string) error {
	if _, err := cronParser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}
	return nil
}

// New creates a Scheduler. An empty schedule never fires.
func New(schedule string, handler Handler) *Scheduler {
	return &Scheduler{
		handler:  handler,
		schedule: schedule,
		cron:     cron.New(cron.WithParser(cronParser)),
	}
}

// Start registers the schedule and starts the cron ticker.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.start()
}

func (s *Scheduler) start() error {
	if s.schedule != "" {
		schedule := s.schedule
		_, err := s.cron.AddFunc(schedule, func() {
			slog.Info("cron firing replay", "schedule", schedule)
			s.handler()
		})
		if err != nil {
			return fmt.Errorf("invalid schedule %q: %w", schedule, err)
		}
		slog.Info("replays scheduled", "schedule", schedule)
	}
	s.cron.Start()
	return nil
}

// Reload stops the existing cron and starts a new one on schedule.
func (s *Scheduler) Reload(schedule string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cron.Stop()
	s.schedule = schedule
	s.cron = cron.New(cron.WithParser(cronParser))
	return s.start()
}

// Stop stops the cron ticker. A replay already firing keeps running.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cron.Stop()
}
