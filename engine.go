// Package engine identifies the weave step-dispatch service.
package engine

const (
	// Name is the service name reported in logs and health responses
	Name = "weave-engine"

	// Version is the service version reported in logs and health responses
	Version = "0.3.0"
)
