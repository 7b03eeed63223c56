package health

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/queryman/queryman/internal/config"
	"github.com/queryman/queryman/internal/database"
	"github.com/queryman/queryman/internal/metrics"
)

func testSession(t *testing.T) *database.Session {
	t.Helper()
	cfg := config.DatabaseConfig{Driver: config.DriverSQLite}
	cfg.SQLite.File = filepath.Join(t.TempDir(), "test.db")
	cfg.SQLite.MaxCachedStatements = 8

	sess, err := database.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return sess
}

func TestCheckerHealthy(t *testing.T) {
	sess := testSession(t)
	defer sess.Close()

	c := NewChecker(sess, metrics.New(), time.Minute, 3, time.Second)
	if !c.IsHealthy() {
		t.Error("unknown state reads as unhealthy")
	}

	c.check()
	if !c.IsHealthy() {
		t.Error("IsHealthy = false after a good ping")
	}
	state := c.GetState()
	if state.Status != StatusHealthy || state.ConsecutiveFailures != 0 {
		t.Errorf("state = %+v", state)
	}
	if state.StatusName != "healthy" {
		t.Errorf("status name = %q", state.StatusName)
	}
}

func TestCheckerFailureThreshold(t *testing.T) {
	sess := testSession(t)
	c := NewChecker(sess, metrics.New(), time.Minute, 3, time.Second)
	c.check()
	sess.Close()

	// Failures below the threshold keep the healthy status.
	c.check()
	c.check()
	if !c.IsHealthy() {
		t.Error("went unhealthy before the threshold")
	}
	if state := c.GetState(); state.ConsecutiveFailures != 2 || state.LastError == "" {
		t.Errorf("state = %+v", state)
	}

	c.check()
	if c.IsHealthy() {
		t.Error("still healthy past the threshold")
	}
	if state := c.GetState(); state.Status != StatusUnhealthy {
		t.Errorf("state = %+v", state)
	}
}

func TestCheckerRecovery(t *testing.T) {
	closed := testSession(t)
	closed.Close()

	c := NewChecker(closed, metrics.New(), time.Minute, 1, time.Second)
	c.check()
	if c.IsHealthy() {
		t.Fatal("closed session reads healthy")
	}

	sess := testSession(t)
	defer sess.Close()
	c.sess = sess
	c.check()
	if !c.IsHealthy() {
		t.Error("did not recover after a good ping")
	}
	if state := c.GetState(); state.ConsecutiveFailures != 0 || state.LastError != "" {
		t.Errorf("state = %+v", state)
	}
}

func TestCheckerStartStop(t *testing.T) {
	sess := testSession(t)
	defer sess.Close()

	c := NewChecker(sess, metrics.New(), 10*time.Millisecond, 3, time.Second)
	c.Start()

	deadline := time.Now().Add(5 * time.Second)
	for c.GetState().Status == StatusUnknown {
		if time.Now().After(deadline) {
			t.Fatal("checker never ran")
		}
		time.Sleep(5 * time.Millisecond)
	}
	c.Stop()
	c.Stop() // idempotent

	if !c.IsHealthy() {
		t.Error("IsHealthy = false with a live database")
	}
}
