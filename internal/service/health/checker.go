// Package health 汇总存储与向量模型的可用性。
package health

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/zhouzirui/z-tone/backend/internal/store"
)

// Status is the coarse service state.
type Status string

const (
	Healthy   Status = "healthy"
	Degraded  Status = "degraded"
	Unhealthy Status = "unhealthy"
)

var errNoEmbedder = errors.New("no embedding provider configured")

// Prober checks that the embedding provider answers.
type Prober interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
	Model() string
}

// Report is the result of one check.
type Report struct {
	Status    Status         `json:"status"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details"`
	Timestamp time.Time      `json:"timestamp"`
}

// Checker is shared by HTTP and gRPC health endpoints.
type Checker struct {
	serviceID string
	store     store.Pinger
	embedder  Prober
	backends  map[string]string
	timeout   time.Duration
	started   time.Time
	requests  atomic.Int64
	now       func() time.Time
}

// NewChecker builds a checker. backends is reported verbatim in the details.
func NewChecker(s store.Pinger, embedder Prober, backends map[string]string) *Checker {
	return &Checker{
		serviceID: store.NewID(),
		store:     s,
		embedder:  embedder,
		backends:  backends,
		timeout:   2 * time.Second,
		started:   time.Now(),
		now:       time.Now,
	}
}

// CountRequest records one served request for the details block.
func (c *Checker) CountRequest() {
	c.requests.Add(1)
}

// Check pings the store and probes the embedder.
func (c *Checker) Check(ctx context.Context) Report {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	storeErr := c.store.Ping(ctx)

	var embedErr error
	if c.embedder == nil {
		embedErr = errNoEmbedder
	} else {
		_, embedErr = c.embedder.Embed(ctx, "health check")
	}

	now := c.now()
	uptime := now.Sub(c.started).Seconds()
	requests := c.requests.Load()

	details := map[string]any{
		"service_id":          c.serviceID,
		"uptime_seconds":      uptime,
		"total_requests":      requests,
		"requests_per_minute": float64(requests) / max(1, uptime) * 60,
		"database":            "connected",
		"vector_operations":   "operational",
	}
	if c.embedder != nil {
		details["vector_dimension"] = c.embedder.Dimension()
		details["vector_model"] = c.embedder.Model()
	}
	for k, v := range c.backends {
		details[k] = v
	}

	r := Report{Details: details, Timestamp: now.UTC()}
	switch {
	case storeErr != nil:
		details["database"] = "disconnected"
		details["database_error"] = storeErr.Error()
		r.Status = Unhealthy
		r.Message = "service has connectivity issues"
	case embedErr != nil:
		details["vector_operations"] = "limited"
		details["vector_error"] = embedErr.Error()
		r.Status = Degraded
		r.Message = "service operational but vector operations limited"
	default:
		r.Status = Healthy
		r.Message = "service is fully operational"
	}
	return r
}
