package system

import (
	"context"
	"sort"
	"sync"
	"time"

	"askhc/src/infrastructure/log"
)

// ComponentStatus represents the status of system components
type ComponentStatus string

const (
	StatusUp   ComponentStatus = "up"
	StatusDown ComponentStatus = "down"

	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// Check tests one dependency
type Check func(ctx context.Context) error

// HealthStatus represents system health status
type HealthStatus struct {
	Status     string                     `json:"status"`
	AppName    string                     `json:"app_name"`
	Version    string                     `json:"version"`
	Components map[string]ComponentStatus `json:"components"`
}

type HealthService struct {
	appName string
	version string
	timeout time.Duration
	checks  map[string]Check
}

func NewHealthService(appName, version string, timeout time.Duration) *HealthService {
	return &HealthService{
		appName: appName,
		version: version,
		timeout: timeout,
		checks:  make(map[string]Check),
	}
}

// AddCheck registers a component. Not safe to call once serving.
func (s *HealthService) AddCheck(name string, check Check) {
	s.checks[name] = check
}

// CheckHealth runs all checks concurrently. Any component down marks the
// system unhealthy.
func (s *HealthService) CheckHealth(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Status:     StatusHealthy,
		AppName:    s.appName,
		Version:    s.version,
		Components: make(map[string]ComponentStatus, len(s.checks)),
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make([]error, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = s.checks[name](ctx)
		}()
	}
	wg.Wait()

	for i, name := range names {
		if results[i] != nil {
			log.Debug("health check failed", "component", name, "error", results[i].Error())
			status.Components[name] = StatusDown
			status.Status = StatusUnhealthy
			continue
		}
		status.Components[name] = StatusUp
	}
	return status
}
