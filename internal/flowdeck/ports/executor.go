package ports

import (
	"context"

	"github.com/soochol/flowdeck/internal/flowdeck"
)

// ToolCatalog lists the tools the executor can run.
type ToolCatalog interface {
	ListTools(ctx context.Context) ([]flowdeck.ToolInfo, error)
}

// PlanGenerator turns a natural-language request into a plan. The result is
// untrusted and must be validated before it is accepted.
type PlanGenerator interface {
	GeneratePlan(ctx context.Context, message string) (*flowdeck.GeneratedPlan, error)
}

// ExecutionSubmitter hands a plan to the executor. It returns once the
// executor acknowledged the submission; progress is observed elsewhere.
type ExecutionSubmitter interface {
	Execute(ctx context.Context, sub flowdeck.Submission) error
}

// SnapshotSource returns the authoritative list of in-flight execution records.
type SnapshotSource interface {
	ActiveWorkflows(ctx context.Context) ([]flowdeck.ExecutionRecord, error)
}

// Subscription is a scoped handle on a live event stream. Close is idempotent.
type Subscription interface {
	Events() <-chan flowdeck.LiveEvent
	Close()
}

// LiveSource opens subscriptions to log events of one flow.
type LiveSource interface {
	Subscribe(ctx context.Context, flowID string) (Subscription, error)
}

// Executor is the full contract of an execution backend.
type Executor interface {
	ToolCatalog
	ExecutionSubmitter
	SnapshotSource
}
