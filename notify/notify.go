package notify

import (
	"context"
	"log/slog"
	"time"
)

// TaskType names the kind of work an event reports on.
type TaskType string

const (
	TaskImage   TaskType = "image"
	TaskVoice   TaskType = "voice"
	TaskVideo   TaskType = "video"
	TaskCompile TaskType = "compile"
	TaskBatch   TaskType = "batch"
)

// Event is a progress notification. Progress runs from 0 to 100.
type Event struct {
	WorkspaceID string    `json:"workspace_id"`
	TaskID      string    `json:"task_id"`
	TaskType    TaskType  `json:"task_type"`
	Status      string    `json:"status"`
	Progress    int       `json:"progress"`
	Message     string    `json:"message,omitempty"`
	EntityID    string    `json:"entity_id,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Publisher delivers events. Publish never blocks on slow consumers and
// never fails the caller.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

// LogPublisher writes every event to the logger.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, ev Event) {
	p.logger.Info("Progress",
		slog.String("workspace_id", ev.WorkspaceID),
		slog.String("task_id", ev.TaskID),
		slog.String("task_type", string(ev.TaskType)),
		slog.String("status", ev.Status),
		slog.Int("progress", ev.Progress),
		slog.String("entity_id", ev.EntityID),
		slog.String("message", ev.Message))
}

// Multi fans an event out to several publishers.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev Event) {
	for _, p := range m {
		if p != nil {
			p.Publish(ctx, ev)
		}
	}
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}

// ClampProgress bounds p to 0..100.
func ClampProgress(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}
