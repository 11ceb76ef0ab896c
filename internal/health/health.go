// health.go - Component health registry.
package health

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Status represents the health status of a component
type Status string

const (
	Healthy   Status = "healthy"
	Degraded  Status = "degraded"
	Unhealthy Status = "unhealthy"
)

// CheckFunc probes one component. A nil error means healthy.
type CheckFunc func(ctx context.Context) error

// ComponentHealth represents the health of a specific component
type ComponentHealth struct {
	Name      string        `json:"name"`
	Status    Status        `json:"status"`
	Message   string        `json:"message"`
	LastCheck time.Time     `json:"last_check"`
	Latency   time.Duration `json:"latency,omitempty"`
}

// SystemHealth represents the overall system health
type SystemHealth struct {
	OverallStatus Status            `json:"overall_status"`
	Timestamp     time.Time         `json:"timestamp"`
	Components    []ComponentHealth `json:"components"`
	Uptime        time.Duration     `json:"uptime"`
	Version       string            `json:"version"`
}

// Checker manages health checks for the service components.
type Checker struct {
	mu         sync.Mutex
	components map[string]*ComponentHealth
	checkers   map[string]CheckFunc
	optional   map[string]bool
	startTime  time.Time
	version    string
	now        func() time.Time
}

// NewChecker creates a new health checker
func NewChecker(version string) *Checker {
	return &Checker{
		components: make(map[string]*ComponentHealth),
		checkers:   make(map[string]CheckFunc),
		optional:   make(map[string]bool),
		startTime:  time.Now(),
		version:    version,
		now:        time.Now,
	}
}

// Register adds a required component. Its failure makes the system unhealthy.
func (hc *Checker) Register(name string, check CheckFunc) {
	hc.register(name, check, false)
}

// RegisterOptional adds a component whose failure only degrades the system.
func (hc *Checker) RegisterOptional(name string, check CheckFunc) {
	hc.register(name, check, true)
}

func (hc *Checker) register(name string, check CheckFunc, optional bool) {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	hc.components[name] = &ComponentHealth{
		Name:      name,
		Status:    Healthy,
		Message:   "Component registered",
		LastCheck: hc.now(),
	}
	hc.checkers[name] = check
	hc.optional[name] = optional
}

// Check runs every registered check and returns the aggregated result.
func (hc *Checker) Check(ctx context.Context) *SystemHealth {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	for name, component := range hc.components {
		check := hc.checkers[name]
		if check == nil {
			continue
		}
		start := hc.now()
		err := check(ctx)
		component.Latency = hc.now().Sub(start)
		component.LastCheck = hc.now()
		switch {
		case err == nil:
			component.Status = Healthy
			component.Message = "OK"
		case hc.optional[name]:
			component.Status = Degraded
			component.Message = err.Error()
		default:
			component.Status = Unhealthy
			component.Message = err.Error()
		}
	}
	return hc.snapshot()
}

// Last returns the result of the most recent Check without probing.
func (hc *Checker) Last() *SystemHealth {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	return hc.snapshot()
}

func (hc *Checker) snapshot() *SystemHealth {
	overall := Healthy
	components := make([]ComponentHealth, 0, len(hc.components))
	for _, c := range hc.components {
		if c.Status == Unhealthy {
			overall = Unhealthy
		} else if c.Status == Degraded && overall == Healthy {
			overall = Degraded
		}
		components = append(components, *c)
	}
	sort.Slice(components, func(i, j int) bool { return components[i].Name < components[j].Name })

	return &SystemHealth{
		OverallStatus: overall,
		Timestamp:     hc.now(),
		Components:    components,
		Uptime:        hc.now().Sub(hc.startTime),
		Version:       hc.version,
	}
}

// Response represents the response format for health check endpoints
type Response struct {
	Status  string        `json:"status"`
	Message string        `json:"message"`
	Data    *SystemHealth `json:"data,omitempty"`
}

// NewResponse creates a standardized health check response
func NewResponse(h *SystemHealth) *Response {
	status := "success"
	message := "System is healthy"

	switch h.OverallStatus {
	case Unhealthy:
		status = "error"
		message = "System is unhealthy"
	case Degraded:
		status = "warning"
		message = "System is degraded"
	}

	return &Response{Status: status, Message: message, Data: h}
}
