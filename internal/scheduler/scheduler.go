// Package scheduler runs the periodic audit sweep over published pages.
// Pages that have not been touched in a while get an audit task so
// regressions surface without anyone asking.
package scheduler

import (
	"context"
	"fmt"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/Joeyzzyy/seopages-pro-sub002/internal/agent/runner"
	"github.com/Joeyzzyy/seopages-pro-sub002/internal/agent/task"
	"github.com/Joeyzzyy/seopages-pro-sub002/internal/artifact"
	"github.com/Joeyzzyy/seopages-pro-sub002/internal/config"
	"github.com/Joeyzzyy/seopages-pro-sub002/internal/logging"
)

// auditSkillID is the profile every sweep-created audit run uses
const auditSkillID = "page-auditor"

// Sweeper schedules audit runs for stale published pages
type Sweeper struct {
	cfg       config.AuditConfig
	store     *artifact.Store
	runner    *runner.Runner
	scheduler *cronlib.Cron
}

// New creates a sweeper. Call Start to begin sweeping.
func New(cfg config.AuditConfig, store *artifact.Store, r *runner.Runner) *Sweeper {
	return &Sweeper{
		cfg:       cfg,
		store:     store,
		runner:    r,
		scheduler: cronlib.New(),
	}
}

// Start registers the sweep on the configured cron schedule
func (s *Sweeper) Start() error {
	if !s.cfg.Enabled {
		logging.Infof("[Audit] Sweep disabled")
		return nil
	}

	_, err := s.scheduler.AddFunc(s.cfg.Schedule, func() {
		if err := s.Sweep(context.Background()); err != nil {
			logging.Errorf("[Audit] Sweep failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid audit schedule %q: %w", s.cfg.Schedule, err)
	}

	s.scheduler.Start()
	logging.Infof("[Audit] Sweep scheduled: %s (stale after %s)", s.cfg.Schedule, s.cfg.StaleAfter)
	return nil
}

// Stop halts the scheduler; a sweep already in flight finishes
func (s *Sweeper) Stop() {
	ctx := s.scheduler.Stop()
	<-ctx.Done()
}

// Sweep audits every published page whose artifact has not been updated
// within the staleness window. Audits run sequentially in a dedicated
// session per page; a page whose session is busy is skipped until the
// next sweep.
func (s *Sweeper) Sweep(ctx context.Context) error {
	cutoff := time.Now().Add(-s.cfg.StaleAfter)
	stale, err := s.store.ListPublishedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to list stale pages: %w", err)
	}
	if len(stale) == 0 {
		return nil
	}
	logging.Infof("[Audit] Sweeping %d stale pages", len(stale))

	for _, page := range stale {
		if err := s.auditPage(ctx, page); err != nil {
			logging.Warnf("[Audit] Skipping %s: %v", page.TargetID, err)
		}
	}
	return nil
}

func (s *Sweeper) auditPage(ctx context.Context, page artifact.Artifact) error {
	_, err := s.runner.Run(ctx, runner.Request{
		SessionKey: "audit-" + page.TargetID,
		Prompt:     fmt.Sprintf("Audit the published page %q at %s.", page.Title, page.PublicURL),
		SkillID:    auditSkillID,
		TargetID:   page.TargetID,
		Kind:       task.KindPageAudit,
	})
	return err
}
