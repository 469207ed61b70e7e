package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"signaling/internal/agent"
	"signaling/internal/registry"
)

// AgentReaperJob periodically ends provisioner conversations that are no
// longer backed by a live room. Rooms normally release their conversation
// on teardown; this sweeps anything that slipped through (process restarts,
// failed end calls).
type AgentReaperJob struct {
	provisioner agent.Provisioner
	registry    *registry.Registry
	schedule    string
	log         *zap.Logger
	cron        *cron.Cron
}

func NewAgentReaperJob(provisioner agent.Provisioner, reg *registry.Registry, schedule string, log *zap.Logger) *AgentReaperJob {
	return &AgentReaperJob{
		provisioner: provisioner,
		registry:    reg,
		schedule:    schedule,
		log:         log,
		cron:        cron.New(),
	}
}

// Start schedules the reaper.
func (arj *AgentReaperJob) Start() error {
	_, err := arj.cron.AddFunc(arj.schedule, func() {
		if err := arj.RunOnce(); err != nil {
			arj.log.Error("agent reap failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule agent reaper: %w", err)
	}
	arj.cron.Start()
	arj.log.Info("agent reaper started", zap.String("schedule", arj.schedule))
	return nil
}

// Stop stops the scheduler.
func (arj *AgentReaperJob) Stop() {
	if arj.cron != nil {
		arj.cron.Stop()
	}
}

// RunOnce performs a single sweep.
func (arj *AgentReaperJob) RunOnce() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	ended, err := arj.provisioner.CleanupConversations(ctx, arj.registry.ActiveConversationIDs())
	if err != nil {
		return err
	}
	if ended > 0 {
		arj.log.Info("reaped orphaned conversations", zap.Int("count", ended))
	}
	return nil
}
