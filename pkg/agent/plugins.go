package agent

import (
	"context"
	"fmt"
)

// Plugin is one executable check. Run returns the findings it produced,
// which may be empty.
type Plugin interface {
	Name() string
	Run(ctx context.Context) ([]Finding, error)
}

// The perimeter, rate-limit and authz scans are placeholders: the hosted
// scanners do the real probing, and the CLI keeps their names so pipelines
// and reports wire up end to end. mobile-build is the exception and checks
// a local build manifest.

type PerimeterScan struct{}

func (PerimeterScan) Name() string { return "perimeter" }

func (PerimeterScan) Run(context.Context) ([]Finding, error) { return nil, nil }

type RateLimitScan struct{}

func (RateLimitScan) Name() string { return "rate-limit" }

func (RateLimitScan) Run(context.Context) ([]Finding, error) { return nil, nil }

type AuthzScan struct{}

func (AuthzScan) Name() string { return "authz" }

func (AuthzScan) Run(context.Context) ([]Finding, error) { return nil, nil }

// Builtins returns the built-in plugins in their canonical run order.
func Builtins() []Plugin {
	return []Plugin{
		PerimeterScan{},
		RateLimitScan{},
		AuthzScan{},
		MobileBuildScan{},
	}
}

// ByName returns the built-in plugin with the given name.
func ByName(name string) (Plugin, error) {
	for _, p := range Builtins() {
		if p.Name() == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("unknown plugin: %q", name)
}
