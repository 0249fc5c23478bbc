package scheduler

import (
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is a unit of background work the scheduler runs on a cron schedule.
type Job interface {
	Run() error
	Name() string
}

// Scheduler runs registered jobs on their cron schedules. Jobs keep the
// stored bar series fresh while the server is up; failures are logged and the
// schedule keeps ticking.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger
	jobs []string
}

// New creates a new scheduler
func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithSeconds()),
		log:  log.With().Str("component", "scheduler").Logger(),
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Strs("jobs", s.jobs).Msg("Scheduler started")
}

// Stop stops the scheduler and waits for running jobs to finish
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}

// AddJob registers a job with a cron schedule
// Schedule examples:
//   - "@hourly"            - bar refresh cadence
//   - "@every 5m"          - tighter ingest cadence for live CSV drops
//   - "0 0 0 * * MON-FRI"  - weekday midnight maintenance
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		if err := s.runJob(job); err != nil {
			s.log.Error().
				Err(err).
				Str("job", job.Name()).
				Msg("Job failed")
		}
	})
	if err != nil {
		return err
	}

	s.jobs = append(s.jobs, job.Name())
	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")

	return nil
}

// RunNow executes a job immediately, outside its schedule. Used at startup to
// prime the dataset before the first tick.
func (s *Scheduler) RunNow(job Job) error {
	s.log.Info().Str("job", job.Name()).Msg("Running job immediately")
	return s.runJob(job)
}

func (s *Scheduler) runJob(job Job) error {
	s.log.Debug().Str("job", job.Name()).Msg("Running job")
	if err := job.Run(); err != nil {
		return err
	}
	s.log.Debug().Str("job", job.Name()).Msg("Job completed")
	return nil
}
