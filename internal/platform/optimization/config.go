// Package optimization provides buffer and pool tuning profiles.
package optimization

import (
	"fmt"
	"runtime"

	"github.com/gqrshy/tacticalrevive/internal/platform/metrics"
)

// Config holds tuned parameters for a load profile.
type Config struct {
	// Channel buffer sizes
	CommandQueueBuffer     int
	BroadcastChannelBuffer int
	ClientSendBuffer       int
	EventPersistBuffer     int

	// Connection pools
	DBMaxOpenConns int
	DBMaxIdleConns int

	// Rate limiting
	MaxMessagesPerSecond int
	MaxClients           int
}

// DefaultConfig returns sensible defaults for production.
func DefaultConfig() *Config {
	numCPU := runtime.NumCPU()

	return &Config{
		CommandQueueBuffer:     1024, // bursts of hits and help requests between ticks
		BroadcastChannelBuffer: 256,
		ClientSendBuffer:       64,
		EventPersistBuffer:     512,

		// sqlite serializes writers anyway
		DBMaxOpenConns: numCPU,
		DBMaxIdleConns: 2,

		MaxMessagesPerSecond: 100,
		MaxClients:           200,
	}
}

// StressTestConfig returns aggressive settings for stress testing.
func StressTestConfig() *Config {
	numCPU := runtime.NumCPU()

	return &Config{
		CommandQueueBuffer:     8192,
		BroadcastChannelBuffer: 1024,
		ClientSendBuffer:       256,
		EventPersistBuffer:     4096,

		DBMaxOpenConns: numCPU * 2,
		DBMaxIdleConns: numCPU,

		MaxMessagesPerSecond: 500,
		MaxClients:           1000,
	}
}

// LowResourceConfig returns minimal settings for development.
func LowResourceConfig() *Config {
	return &Config{
		CommandQueueBuffer:     64,
		BroadcastChannelBuffer: 16,
		ClientSendBuffer:       8,
		EventPersistBuffer:     32,

		DBMaxOpenConns: 2,
		DBMaxIdleConns: 1,

		MaxMessagesPerSecond: 10,
		MaxClients:           20,
	}
}

// ForProfile resolves a profile name.
func ForProfile(name string) (*Config, error) {
	switch name {
	case "", "default":
		return DefaultConfig(), nil
	case "stress":
		return StressTestConfig(), nil
	case "low":
		return LowResourceConfig(), nil
	default:
		return nil, fmt.Errorf("unknown tuning profile %q", name)
	}
}

// Recommendations provides suggestions based on observed metrics.
type Recommendations struct {
	IncreaseCommandBuffer   bool
	IncreaseBroadcastBuffer bool
	IncreaseDBConnections   bool
	Notes                   []string
}

// Analyze examines a metrics snapshot against the tick budget.
func Analyze(s metrics.Snapshot, tickBudgetMs float64) *Recommendations {
	rec := &Recommendations{
		Notes: make([]string, 0),
	}

	if tickBudgetMs > 0 && s.Tick.MaxLatencyMs > tickBudgetMs {
		rec.Notes = append(rec.Notes, fmt.Sprintf("Tick latency %.1fms exceeds the %.0fms tick budget", s.Tick.MaxLatencyMs, tickBudgetMs))
	}
	if s.Commands.Dropped > 0 {
		rec.IncreaseCommandBuffer = true
		rec.Notes = append(rec.Notes, "Commands were dropped - increase command queue buffer")
	}
	if s.Events.MaxWriteLatMs > 50 {
		rec.IncreaseDBConnections = true
		rec.Notes = append(rec.Notes, "Event write latency exceeds 50ms - increase DB connections")
	}
	if s.Events.Errors > 0 {
		rec.IncreaseDBConnections = true
		rec.Notes = append(rec.Notes, "Event write errors detected - check DB connection pool")
	}
	if s.Replication.Dropped > 0 || s.WebSocket.Errors > 0 {
		rec.IncreaseBroadcastBuffer = true
		rec.Notes = append(rec.Notes, "Snapshots dropped - increase client send buffer")
	}

	return rec
}

// ApplyRecommendations modifies config based on recommendations.
func ApplyRecommendations(config *Config, rec *Recommendations) *Config {
	if rec.IncreaseCommandBuffer {
		config.CommandQueueBuffer *= 2
	}
	if rec.IncreaseBroadcastBuffer {
		config.BroadcastChannelBuffer *= 2
		config.ClientSendBuffer *= 2
	}
	if rec.IncreaseDBConnections {
		config.DBMaxOpenConns = int(float64(config.DBMaxOpenConns) * 1.5)
		config.DBMaxIdleConns = int(float64(config.DBMaxIdleConns) * 1.5)
	}
	return config
}
