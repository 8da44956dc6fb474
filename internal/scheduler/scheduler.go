package scheduler

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Handler is the callback invoked when a scheduled digest fires.
type Handler func()

// Scheduler fires the recurring digest run on a cron schedule.
type Scheduler struct {
	schedule string
	handler  Handler
	cron     *cron.Cron
}

// cronParser accepts both standard 5-field cron expressions and 6-field
// expressions with an optional seconds field.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// New creates a Scheduler that calls handler on the given cron schedule.
func New(schedule string, handler Handler) *Scheduler {
	return &Scheduler{
		schedule: schedule,
		handler:  handler,
		cron:     cron.New(cron.WithParser(cronParser)),
	}
}

// Start registers the digest entry and starts the cron ticker.
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		slog.Info("cron firing digest", "schedule", s.schedule)
		s.handler()
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	slog.Info("scheduled digest", "schedule", s.schedule)
	return nil
}

// Reload swaps in a new schedule. The new expression is validated before the
// running cron stops, so a bad reload leaves the old schedule ticking.
func (s *Scheduler) Reload(schedule string) error {
	if _, err := cronParser.Parse(schedule); err != nil {
		return err
	}
	s.cron.Stop()
	s.schedule = schedule
	s.cron = cron.New(cron.WithParser(cronParser))
	return s.Start()
}

// Stop stops the cron ticker.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
