package jobs

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"signaling/internal/models"
	"signaling/internal/registry"
)

type recordingProvisioner struct {
	keep  []string
	ended int
	err   error
	calls int
}

func (rp *recordingProvisioner) CreateConversation(context.Context, string) (*models.AgentDescriptor, error) {
	return nil, errors.New("not implemented")
}
func (rp *recordingProvisioner) SendMessage(context.Context, string, string) (bool, error) {
	return false, errors.New("not implemented")
}
func (rp *recordingProvisioner) EndConversation(context.Context, string) error {
	return errors.New("not implemented")
}
func (rp *recordingProvisioner) CleanupConversations(_ context.Context, keep []string) (int, error) {
	rp.calls++
	rp.keep = keep
	return rp.ended, rp.err
}

func TestRunOncePassesLiveConversations(t *testing.T) {
	reg := registry.NewRegistry()
	reg.Join("c1", "r1")
	if ok := reg.SetAgent("r1", &models.AgentDescriptor{ConversationID: "conv-live"}); !ok {
		t.Fatal("failed to set agent")
	}

	rp := &recordingProvisioner{ended: 2}
	job := NewAgentReaperJob(rp, reg, "*/10 * * * *", zap.NewNop())

	if err := job.RunOnce(); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if rp.calls != 1 {
		t.Fatalf("expected one cleanup call, got %d", rp.calls)
	}
	if len(rp.keep) != 1 || rp.keep[0] != "conv-live" {
		t.Errorf("live conversation should be on the keep list, got %v", rp.keep)
	}
}

func TestRunOnceWithNoRooms(t *testing.T) {
	rp := &recordingProvisioner{}
	job := NewAgentReaperJob(rp, registry.NewRegistry(), "*/10 * * * *", zap.NewNop())

	if err := job.RunOnce(); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if len(rp.keep) != 0 {
		t.Errorf("expected empty keep list, got %v", rp.keep)
	}
}

func TestRunOncePropagatesError(t *testing.T) {
	rp := &recordingProvisioner{err: errors.New("api down")}
	job := NewAgentReaperJob(rp, registry.NewRegistry(), "*/10 * * * *", zap.NewNop())

	if err := job.RunOnce(); err == nil {
		t.Error("expected cleanup error to propagate")
	}
}

func TestStartRejectsBadSchedule(t *testing.T) {
	job := NewAgentReaperJob(&recordingProvisioner{}, registry.NewRegistry(), "not a schedule", zap.NewNop())
	defer job.Stop()

	if err := job.Start(); err == nil {
		t.Error("expected invalid schedule to be rejected")
	}
}
