package runner

import (
	"context"

	"github.com/html2ndi/ndi-acceptor/supervisor"
)

// supervisorLauncher adapts a Supervisor to the Launcher interface
type supervisorLauncher struct {
	sup *supervisor.Supervisor
}

// NewSupervisorLauncher wraps s so the runner can drive it.
func NewSupervisorLauncher(s *supervisor.Supervisor) Launcher {
	if s == nil {
		return nil
	}
	return &supervisorLauncher{sup: s}
}

func (a *supervisorLauncher) Run(ctx context.Context, spec supervisor.LaunchSpec, fn func(ctx context.Context, w Worker) error) error {
	return a.sup.Run(ctx, spec, func(ctx context.Context, w *supervisor.Worker) error {
		return fn(ctx, w)
	})
}

func (a *supervisorLauncher) Shutdown() error {
	return a.sup.Shutdown()
}
