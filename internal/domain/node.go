package domain

import "time"

// Node is a single plugin invocation site within a routine.
//
// A node is enabled by default. A disabled node is never dispatched and,
// for readiness purposes, behaves as an absent producer of outputs: edges
// leaving it are never satisfied.
type Node struct {
	ID                 string
	PluginID           string
	Label              string
	Parameters         map[string]any
	CredentialMappings map[string]string // requirement key -> stored credential id
	Position           *Position
	Disabled           bool
	Retry              *RetryPolicy
}

// RetryPolicy governs how many times and how a node's plugin dispatch is
// retried after a transient failure. A nil policy on a Node means no
// retries: the Scheduler fails the node on its first error.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool
}

// Position is an optional display hint; the engine never reads it.
type Position struct {
	X float64
	Y float64
}

// Enabled reports whether the node participates in dispatch.
func (n *Node) Enabled() bool {
	return n != nil && !n.Disabled
}
