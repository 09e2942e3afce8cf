package service

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/robfig/cron/v3"
)

// SchedulerService runs the periodic jobs of the bot: backup pruning and
// summaries.
type SchedulerService struct {
	cron *cron.Cron
}

// NewSchedulerService builds a scheduler whose jobs never overlap themselves
// and whose panics are logged instead of crashing the process.
func NewSchedulerService(loc *time.Location, logger *log.Logger) *SchedulerService {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	cronLogger := cron.PrintfLogger(logger.WithPrefix("cron"))
	return &SchedulerService{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithSeconds(),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
	}
}

// ScheduleDaily registers a daily job at the given HH:MM time string.
func (s *SchedulerService) ScheduleDaily(timeStr string, job func()) (cron.EntryID, error) {
	spec, err := buildDailySpec(timeStr)
	if err != nil {
		return 0, err
	}
	return s.cron.AddFunc(spec, job)
}

func (s *SchedulerService) Start() {
	s.cron.Start()
}

func (s *SchedulerService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Entries returns the number of registered jobs.
func (s *SchedulerService) Entries() int {
	return len(s.cron.Entries())
}

// ScheduleInterval runs job every interval, measured from the end of the
// previous run. Sub-second intervals are rounded up to one second.
func (s *SchedulerService) ScheduleInterval(interval time.Duration, job func()) (cron.EntryID, error) {
	if interval <= 0 {
		return 0, fmt.Errorf("schedule interval %s: must be positive", interval)
	}
	return s.cron.Schedule(cron.Every(interval), cron.FuncJob(job)), nil
}

// buildDailySpec turns "HH:MM" into a seconds-first cron spec.
func buildDailySpec(timeStr string) (string, error) {
	at, err := time.Parse("15:04", strings.TrimSpace(timeStr))
	if err != nil {
		return "", fmt.Errorf("invalid time %q, expected HH:MM", timeStr)
	}
	return fmt.Sprintf("0 %d %d * * *", at.Minute(), at.Hour()), nil
}
