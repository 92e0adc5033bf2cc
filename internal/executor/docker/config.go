package docker

import (
	"time"
)

// Config holds the configuration for running submissions in containers.
type Config struct {
	// Image must provide a `node` binary.
	Image string
	// MemoryLimit is the container memory cap in bytes.
	MemoryLimit int64
	// CPULimit is the number of CPUs a container may use.
	CPULimit float64
	// CallTimeout bounds compiling and each call separately. The harness
	// enforces it inside node.
	CallTimeout time.Duration
	// Timeout is the allowance for starting node on top of the per-call
	// budget. Exceeding the whole deadline fails the submission.
	Timeout time.Duration
	// PoolSize is the number of pre-warmed containers kept ready.
	PoolSize int
}

// DefaultConfig runs submissions on Node 20.
func DefaultConfig() Config {
	return Config{
		Image:       "node:20-alpine",
		MemoryLimit: 128 * 1024 * 1024,
		CPULimit:    0.5,
		CallTimeout: 2 * time.Second,
		Timeout:     5 * time.Second,
		PoolSize:    2,
	}
}

// deadline is the backstop for a submission with n calls: the start-up
// allowance plus one CallTimeout for compiling and one per call.
func (c Config) deadline(n int) time.Duration {
	return c.Timeout + time.Duration(n+1)*c.CallTimeout
}
