package knowledgebase

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// ComponentStatus represents the status of system components
type ComponentStatus string

const (
	StatusUp   ComponentStatus = "up"
	StatusDown ComponentStatus = "down"
)

// HealthStatus represents system health status
type HealthStatus struct {
	Status     string                     `json:"status"`
	Components map[string]ComponentStatus `json:"components"`
}

// Healthy reports whether every component is up.
func (h *HealthStatus) Healthy() bool {
	return h.Status == "healthy"
}

// SystemService checks the collaborators the service depends on.
type SystemService struct {
	components map[string]Pinger
	timeout    time.Duration
}

func NewSystemService(components map[string]Pinger, timeout time.Duration) *SystemService {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &SystemService{
		components: components,
		timeout:    timeout,
	}
}

// CheckHealth pings all components concurrently.
func (s *SystemService) CheckHealth(ctx context.Context) (*HealthStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	names := make([]string, 0, len(s.components))
	for name := range s.components {
		names = append(names, name)
	}
	sort.Strings(names)

	status := &HealthStatus{
		Status:     "healthy",
		Components: make(map[string]ComponentStatus, len(names)),
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		pinger := s.components[name]
		g.Go(func() error {
			result := StatusUp
			if err := pinger.Ping(gctx); err != nil {
				result = StatusDown
			}
			mu.Lock()
			status.Components[name] = result
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// If any component is down, mark system as unhealthy
	for _, name := range names {
		if status.Components[name] == StatusDown {
			status.Status = "unhealthy"
			break
		}
	}
	return status, nil
}
