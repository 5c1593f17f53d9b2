package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"HodlFarm/internal/amount"
	"HodlFarm/internal/farm"
	"HodlFarm/internal/metrics"
	"HodlFarm/internal/model"
	"HodlFarm/internal/notifier"
	"HodlFarm/internal/recorder"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// historyLimit caps the events returned by /history.
const historyLimit = 10

// Scheduler manages all cron tasks and answers chat commands.
type Scheduler struct {
	Cron     *cron.Cron
	Farm     *farm.Farm
	Notifier notifier.Notifier
	Recorder recorder.Recorder
	Metrics  *metrics.Metrics
	Ctx      context.Context

	// LowPoolThreshold triggers an alert when the pool drops below it.
	// Zero disables the threshold; a shortfall against pending yield
	// always alerts.
	LowPoolThreshold amount.Amount

	logger zerolog.Logger

	mu       sync.Mutex
	alerting bool
}

// NewScheduler creates a new Scheduler.
func NewScheduler(ctx context.Context, f *farm.Farm, n notifier.Notifier, rec recorder.Recorder, m *metrics.Metrics, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		Cron:     cron.New(cron.WithSeconds()),
		Farm:     f,
		Notifier: n,
		Recorder: rec,
		Metrics:  m,
		Ctx:      ctx,
		logger:   logger.With().Str("component", "scheduler").Logger(),
	}
}

// RegisterAll registers the snapshot, pool check and report tasks.
func (s *Scheduler) RegisterAll(snapshotCron, poolCheckCron, reportCron string) error {
	if _, err := s.Cron.AddFunc(snapshotCron, s.snapshotTask); err != nil {
		return fmt.Errorf("register snapshot task: %w", err)
	}
	if _, err := s.Cron.AddFunc(poolCheckCron, s.poolCheckTask); err != nil {
		return fmt.Errorf("register pool check task: %w", err)
	}
	if _, err := s.Cron.AddFunc(reportCron, s.reportTask); err != nil {
		return fmt.Errorf("register report task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.logger.Info().Int("tasks", len(s.Cron.Entries())).Msg("scheduler started")
}

// Stop stops the cron scheduler and waits for running tasks to finish.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.logger.Info().Msg("scheduler stopped")
}

// RunSnapshotNow persists the farm and records a pool snapshot immediately.
func (s *Scheduler) RunSnapshotNow() {
	s.snapshotTask()
}

// RunReportNow sends the pool report immediately.
func (s *Scheduler) RunReportNow() {
	s.reportTask()
}

func (s *Scheduler) snapshotTask() {
	if err := s.Farm.Save(); err != nil {
		s.logger.Error().Err(err).Msg("save farm state")
	}
	stats := s.Farm.Stats()
	if s.Metrics != nil {
		s.Metrics.SetPoolStats(stats)
	}
	if err := s.Recorder.RecordPoolSnapshot(&stats); err != nil {
		s.logger.Error().Err(err).Msg("record pool snapshot")
	}
	s.logger.Debug().
		Str("pool", stats.RewardPool.String()).
		Str("staked", stats.TotalStaked.String()).
		Int("stakers", stats.Stakers).
		Msg("pool snapshot taken")
}

// poolCheckTask alerts once when the pool becomes low or cannot cover the
// pending yield, and again only after it has recovered in between.
func (s *Scheduler) poolCheckTask() {
	stats := s.Farm.Stats()
	low := !s.LowPoolThreshold.IsZero() && stats.RewardPool.Lt(s.LowPoolThreshold)
	short := !stats.Shortfall().IsZero()

	s.mu.Lock()
	wasAlerting := s.alerting
	s.alerting = low || short
	s.mu.Unlock()

	switch {
	case (low || short) && !wasAlerting:
		s.logger.Warn().
			Str("pool", stats.RewardPool.String()).
			Str("pending", stats.TotalPending.String()).
			Bool("shortfall", short).
			Msg("reward pool low")
		s.trySend(notifier.FormatLowPoolAlert(&stats, s.LowPoolThreshold))
	case !(low || short) && wasAlerting:
		s.logger.Info().Str("pool", stats.RewardPool.String()).Msg("reward pool recovered")
	}
}

func (s *Scheduler) reportTask() {
	stats := s.Farm.Stats()
	s.trySend(notifier.FormatPoolStatus(&stats))
}

// HandleCommand processes a user command and returns a reply. Commands are
// read-only; nothing reachable from chat changes farm state.
func (s *Scheduler) HandleCommand(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return notifier.FormatHelp()
	}
	// Group chats address bots as /cmd@botname.
	name, _, _ := strings.Cut(fields[0], "@")

	switch name {
	case "/pool", "/start":
		stats := s.Farm.Stats()
		return notifier.FormatPoolStatus(&stats)
	case "/position":
		account, reply := parseAccountArg(fields)
		if reply != "" {
			return reply
		}
		view := s.Farm.Account(account)
		return notifier.FormatPosition(&view)
	case "/history":
		account, reply := parseAccountArg(fields)
		if reply != "" {
			return reply
		}
		events, err := s.Recorder.RecentOperations(account, historyLimit)
		if err != nil {
			s.logger.Error().Err(err).Msg("load history")
			return "History is unavailable right now."
		}
		return notifier.FormatHistory(account, events, time.Now())
	default:
		return notifier.FormatHelp()
	}
}

func parseAccountArg(fields []string) (model.Address, string) {
	if len(fields) < 2 {
		return "", fmt.Sprintf("Usage: %s &lt;address&gt;", fields[0])
	}
	account, err := model.ParseAddress(fields[1])
	if err != nil {
		return "", "Invalid address: expected 0x followed by 40 hex characters."
	}
	return account, ""
}

func (s *Scheduler) trySend(text string) {
	if err := s.Notifier.SendWithRetry(s.Ctx, text, 3); err != nil {
		s.logger.Error().Err(err).Msg("send notification")
	}
}
