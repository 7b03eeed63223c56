// Package health periodically pings the database and tracks whether the
// query manager can serve traffic.
package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/queryman/queryman/internal/database"
	"github.com/queryman/queryman/internal/metrics"
)

// Status is the database health status.
type Status int

const (
	StatusUnknown Status = iota
	StatusHealthy
	StatusUnhealthy
)

func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// State is a snapshot of the checker, served by the admin API.
type State struct {
	Status              Status    `json:"-"`
	StatusName          string    `json:"status"`
	LastCheck           time.Time `json:"last_check"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastError           string    `json:"last_error,omitempty"`
}

// Checker pings the database on an interval. The database goes unhealthy
// after a run of consecutive failures and recovers on the first good ping.
type Checker struct {
	mu    sync.RWMutex
	state State

	sess    *database.Session
	metrics *metrics.Collector

	interval         time.Duration
	failureThreshold int
	timeout          time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewChecker creates a checker over the given session.
func NewChecker(sess *database.Session, m *metrics.Collector, interval time.Duration, failureThreshold int, timeout time.Duration) *Checker {
	return &Checker{
		state:            State{Status: StatusUnknown, StatusName: StatusUnknown.String()},
		sess:             sess,
		metrics:          m,
		interval:         interval,
		failureThreshold: failureThreshold,
		timeout:          timeout,
		stopCh:           make(chan struct{}),
	}
}

// Start begins periodic checking.
func (c *Checker) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run()
	}()
	slog.Info("health checker started",
		"interval", c.interval, "threshold", c.failureThreshold)
}

// Stop stops the checker. Safe to call multiple times.
func (c *Checker) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
	c.wg.Wait()
	slog.Info("health checker stopped")
}

func (c *Checker) run() {
	c.check()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.check()
		case <-c.stopCh:
			return
		}
	}
}

func (c *Checker) check() {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	err := c.sess.Ping(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.LastCheck = time.Now()

	if err == nil {
		if c.state.ConsecutiveFailures > 0 {
			slog.Info("database recovered",
				"failures", c.state.ConsecutiveFailures)
		}
		c.state.Status = StatusHealthy
		c.state.ConsecutiveFailures = 0
		c.state.LastError = ""
	} else {
		c.state.ConsecutiveFailures++
		c.state.LastError = err.Error()
		if c.state.ConsecutiveFailures >= c.failureThreshold {
			if c.state.Status != StatusUnhealthy {
				slog.Warn("database marked unhealthy",
					"failures", c.state.ConsecutiveFailures, "err", err)
			}
			c.state.Status = StatusUnhealthy
		}
	}
	c.state.StatusName = c.state.Status.String()
	c.metrics.SetDatabaseHealthy(c.state.Status != StatusUnhealthy)
}

// IsHealthy reports whether the database can serve traffic. Unknown is
// treated as healthy until the first checks complete.
func (c *Checker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Status != StatusUnhealthy
}

// GetState returns a snapshot of the checker.
func (c *Checker) GetState() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}
