package workflows

import (
	"context"
	"fmt"
	"time"

	"mbook/internal/models"

	enumspb "go.temporal.io/api/enums/v1"
	tclient "go.temporal.io/sdk/client"
)

// Launcher starts a conversion run for an uploaded book and returns its
// workflow ID.
type Launcher interface {
	StartBookConversion(ctx context.Context, input BookConvertInput) (string, error)
}

type TemporalLauncher struct {
	client         tclient.Client
	taskQueue      string
	executeTimeout time.Duration
}

func NewTemporalLauncher(c tclient.Client, taskQueue string, executeTimeout time.Duration) *TemporalLauncher {
	return &TemporalLauncher{client: c, taskQueue: taskQueue, executeTimeout: executeTimeout}
}

func (l *TemporalLauncher) StartBookConversion(ctx context.Context, input BookConvertInput) (string, error) {
	if input.ExecuteTimeout <= 0 {
		input.ExecuteTimeout = l.executeTimeout
	}
	we, err := l.client.ExecuteWorkflow(ctx, tclient.StartWorkflowOptions{
		ID:                                       WorkflowID(input.Title, input.Author),
		TaskQueue:                                l.taskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}, BookConvertWorkflow, input)
	if err != nil {
		return "", fmt.Errorf("start conversion of %q: %w", input.Title, err)
	}
	return we.GetID(), nil
}

// WorkflowID is the conversion workflow ID for a book. Only one run per book
// can be open at a time.
func WorkflowID(title, author string) string {
	return "book-" + models.BookID(title, author)
}
