// Package metrics keeps running authentication counters.
package metrics

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/face-unlock/internal/atomicfile"
)

// Recorder receives authentication attempts and their outcomes.
type Recorder interface {
	RecordAttempt()
	RecordOutcome(success bool, elapsed time.Duration)
}

// Summary represents aggregated authentication insights.
type Summary struct {
	TotalAttempts    int64   `json:"total_attempts"`
	SuccessfulAuths  int64   `json:"successful_authentications"`
	FailedAuths      int64   `json:"failed_authentications"`
	SuccessRate      float64 `json:"success_rate"`
	AverageLatencyMs float64 `json:"average_latency_ms"`
	UptimeSeconds    float64 `json:"uptime_seconds"`
}

type counters struct {
	TotalAttempts    int64   `json:"total_attempts"`
	Successes        int64   `json:"successes"`
	Failures         int64   `json:"failures"`
	AverageLatencyMs float64 `json:"average_latency_ms"`
}

// Tracker is a Recorder that keeps counters in memory and, when a path is
// set, rewrites them to a JSON file after every update.
type Tracker struct {
	mu      sync.Mutex
	c       counters
	path    string
	started time.Time
	now     func() time.Time
	logger  *zap.Logger
}

// NewTracker returns a Tracker persisting to path. An empty path keeps the
// counters in memory only.
func NewTracker(path string, logger *zap.Logger) *Tracker {
	return &Tracker{
		path:    path,
		started: time.Now(),
		now:     time.Now,
		logger:  logger.Named("metrics"),
	}
}

// Load restores counters from the metrics file. A missing file is not an
// error; unreadable files leave the counters at zero.
func (t *Tracker) Load() error {
	if t.path == "" {
		return nil
	}
	data, err := os.ReadFile(t.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	var c counters
	if err := json.Unmarshal(data, &c); err != nil {
		return err
	}

	t.mu.Lock()
	t.c = c
	t.mu.Unlock()
	return nil
}

// RecordAttempt counts one authentication attempt.
func (t *Tracker) RecordAttempt() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.c.TotalAttempts++
	t.persistLocked()
}

// RecordOutcome counts a finished attempt and folds its latency into the
// running average.
func (t *Tracker) RecordOutcome(success bool, elapsed time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if success {
		t.c.Successes++
	} else {
		t.c.Failures++
	}
	n := float64(t.c.Successes + t.c.Failures)
	ms := float64(elapsed) / float64(time.Millisecond)
	t.c.AverageLatencyMs += (ms - t.c.AverageLatencyMs) / n
	t.persistLocked()
}

// Summary returns the current counters.
func (t *Tracker) Summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := Summary{
		TotalAttempts:    t.c.TotalAttempts,
		SuccessfulAuths:  t.c.Successes,
		FailedAuths:      t.c.Failures,
		AverageLatencyMs: t.c.AverageLatencyMs,
		UptimeSeconds:    t.now().Sub(t.started).Seconds(),
	}
	if done := t.c.Successes + t.c.Failures; done > 0 {
		s.SuccessRate = float64(t.c.Successes) / float64(done)
	}
	return s
}

func (t *Tracker) persistLocked() {
	if t.path == "" {
		return
	}
	data, err := json.Marshal(t.c)
	if err == nil {
		err = atomicfile.Write(t.path, data)
	}
	if err != nil {
		t.logger.Warn("failed to persist metrics", zap.String("path", t.path), zap.Error(err))
	}
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordAttempt()                    {}
func (Nop) RecordOutcome(bool, time.Duration) {}
