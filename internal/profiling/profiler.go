// Package profiling times the stages of a turn and appends the measurements
// as JSONL. Off by default; enabled per process via PROFILE_LEVEL.
package profiling

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// Level determines how detailed the profiling is
type Level string

const (
	LevelOff      Level = "off"      // No profiling
	LevelMinimal  Level = "minimal"  // Key turn stages only
	LevelDetailed Level = "detailed" // Adds process resource metadata
	LevelTrace    Level = "trace"    // Every substage (future)
)

// ParseLevel maps a config string to a Level, defaulting to off.
func ParseLevel(s string) Level {
	switch Level(s) {
	case LevelMinimal, LevelDetailed, LevelTrace:
		return Level(s)
	default:
		return LevelOff
	}
}

// StageTiming is a single timing measurement within a turn.
type StageTiming struct {
	TurnID     string         `json:"turn_id"`
	Stage      string         `json:"stage"`
	StartTime  time.Time      `json:"start_time"`
	DurationMs float64        `json:"duration_ms"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Profiler records stage timings for turn processing.
type Profiler struct {
	enabled bool
	level   Level
	path    string

	mu      sync.Mutex
	logFile *os.File
	encoder *json.Encoder

	self *process.Process // this process, for resource metadata
}

// New creates a profiler. A LevelOff profiler never touches the filesystem
// and every call on it is a no-op.
func New(level Level, path string) (*Profiler, error) {
	p := &Profiler{
		enabled: level != LevelOff,
		level:   level,
		path:    path,
	}
	if !p.enabled {
		return p, nil
	}

	var err error
	p.logFile, err = os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open profiling log: %w", err)
	}
	p.encoder = json.NewEncoder(p.logFile)

	if self, err := process.NewProcess(int32(os.Getpid())); err == nil {
		p.self = self
	}
	return p, nil
}

// Close closes the profiler's log file.
func (p *Profiler) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.logFile != nil {
		err := p.logFile.Close()
		p.logFile = nil
		p.encoder = nil
		return err
	}
	return nil
}

// Start begins timing a stage and returns a function to call when done.
func (p *Profiler) Start(turnID, stage string) func() {
	if !p.enabled {
		return func() {}
	}

	start := time.Now()
	return func() {
		p.Record(turnID, stage, time.Since(start), nil)
	}
}

// StartWithMetadata begins timing a stage with additional metadata.
func (p *Profiler) StartWithMetadata(turnID, stage string, metadata map[string]any) func() {
	if !p.enabled {
		return func() {}
	}

	start := time.Now()
	return func() {
		p.Record(turnID, stage, time.Since(start), metadata)
	}
}

// Record writes a timing measurement.
func (p *Profiler) Record(turnID, stage string, duration time.Duration, metadata map[string]any) {
	if !p.enabled {
		return
	}

	timing := StageTiming{
		TurnID:     turnID,
		Stage:      stage,
		StartTime:  time.Now().Add(-duration),
		DurationMs: float64(duration.Nanoseconds()) / 1e6,
		Metadata:   metadata,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.encoder != nil {
		_ = p.encoder.Encode(timing)
	}
}

// ResourceMetadata samples this process: CPU percent since the previous
// sample, resident set size, and goroutine count. Keys are omitted when the
// platform cannot report them.
func (p *Profiler) ResourceMetadata() map[string]any {
	meta := map[string]any{
		"goroutines": runtime.NumGoroutine(),
	}
	if p.self == nil {
		return meta
	}
	if cpu, err := p.self.CPUPercent(); err == nil {
		meta["cpu_percent"] = cpu
	}
	if mem, err := p.self.MemoryInfo(); err == nil && mem != nil {
		meta["rss_mb"] = float64(mem.RSS) / (1024 * 1024)
	}
	return meta
}

// ShouldProfile reports whether stages tagged at the given level are
// recorded under the current configuration.
func (p *Profiler) ShouldProfile(level Level) bool {
	if !p.enabled {
		return false
	}

	switch p.level {
	case LevelTrace:
		return true
	case LevelDetailed:
		return level == LevelMinimal || level == LevelDetailed
	case LevelMinimal:
		return level == LevelMinimal
	default:
		return false
	}
}

// IsEnabled returns true if profiling is enabled
func (p *Profiler) IsEnabled() bool {
	return p.enabled
}

// GetLevel returns the current profiling level
func (p *Profiler) GetLevel() Level {
	return p.level
}
