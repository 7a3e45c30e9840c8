package monitoring

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// checkTimeout caps how long a single readiness probe may take
const checkTimeout = 2 * time.Second

// CheckFunc probes one dependency
type CheckFunc func(ctx context.Context) error

type namedCheck struct {
	name  string
	check CheckFunc
}

// HealthService runs registered readiness probes. Liveness needs no probes;
// readiness pings the hard dependencies (database, and redis when caching is
// enabled) so the load balancer stops routing before requests start failing.
type HealthService struct {
	mu     sync.RWMutex
	checks []namedCheck
	logger *zap.Logger
}

// NewHealthService creates a new HealthService
func NewHealthService(logger *zap.Logger) *HealthService {
	return &HealthService{logger: logger}
}

// Register adds a readiness probe under the given component name
func (s *HealthService) Register(name string, check CheckFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks = append(s.checks, namedCheck{name: name, check: check})
}

// HealthReport is the outcome of one readiness pass
type HealthReport struct {
	Healthy    bool              `json:"healthy"`
	Components map[string]string `json:"components"`
}

// Check runs every registered probe with a per-probe timeout
func (s *HealthService) Check(ctx context.Context) HealthReport {
	s.mu.RLock()
	checks := make([]namedCheck, len(s.checks))
	copy(checks, s.checks)
	s.mu.RUnlock()

	report := HealthReport{
		Healthy:    true,
		Components: make(map[string]string, len(checks)),
	}
	for _, c := range checks {
		probeCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := c.check(probeCtx)
		cancel()
		if err != nil {
			report.Healthy = false
			report.Components[c.name] = err.Error()
			s.logger.Warn("Readiness probe failed",
				zap.String("component", c.name),
				zap.Error(err))
			continue
		}
		report.Components[c.name] = "ok"
	}
	return report
}
