package service

import (
	"context"
	"time"

	"github.com/narrated/pyexec/pkg/api"
)

// Status answers GET /.
func (s *Service) Status(_ context.Context) *api.ServiceStatus {
	return &api.ServiceStatus{
		Status:         "online",
		Service:        ServiceName,
		DefaultTimeout: s.cfg.DefaultTimeout,
	}
}

// Health answers GET /health.
func (s *Service) Health(ctx context.Context) *api.HealthStatus {
	gpu := s.prober.GPU(ctx)
	name := "N/A"
	if gpu.Available {
		name = gpu.Name
	}
	return &api.HealthStatus{
		Status:           "healthy",
		GPUAvailable:     gpu.Available,
		GPUName:          name,
		PythonVersion:    s.prober.PythonVersion(ctx),
		TimeoutSetting:   s.cfg.DefaultTimeout,
		SoundfontPresent: s.prober.SoundfontPresent(),
		ObjectStorage:    s.artifacts != nil,
		Capacity:         s.runner.Capacity(),
		CurrentLoad:      s.runner.InFlight(),
		UptimeSeconds:    int64(s.now().Sub(s.started) / time.Second),
	}
}

// Info answers GET /v1/info.
func (s *Service) Info(ctx context.Context) (*api.InstanceInfo, error) {
	pkgs, err := s.prober.Packages(ctx)
	if err != nil {
		return nil, api.NewServerError("listing installed packages: " + err.Error())
	}
	return &api.InstanceInfo{
		PythonVersion:     s.prober.PythonVersion(ctx),
		GPUInfo:           s.prober.GPU(ctx).Info(),
		InstalledPackages: pkgs,
		Environment: map[string]any{
			"PYTHON_EXECUTE_TIMEOUT": s.cfg.DefaultTimeout,
			"SOUNDFONT_PATH":         s.prober.SoundfontPath(),
		},
	}, nil
}
