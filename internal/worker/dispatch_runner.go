package worker

import (
	"context"

	"github.com/ignite/audience-mailer/internal/service/dispatch"
)

// DispatchRunner adapts the dispatcher to the Job interface.
type DispatchRunner struct {
	svc *dispatch.Service
}

// NewDispatchRunner wraps a dispatch service as a scheduled job.
func NewDispatchRunner(svc *dispatch.Service) *DispatchRunner {
	return &DispatchRunner{svc: svc}
}

func (d *DispatchRunner) Name() string { return "Dispatch" }

func (d *DispatchRunner) Run(ctx context.Context) error {
	_, err := d.svc.RunOnce(ctx)
	return err
}
