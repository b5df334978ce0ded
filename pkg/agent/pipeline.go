package agent

import (
	"context"
	"fmt"
)

// Pipeline runs a fixed set of plugins and collects their findings into one
// report.
type Pipeline struct {
	plugins []Plugin
}

// NewPipeline builds a pipeline over plugins, run in the given order.
func NewPipeline(plugins ...Plugin) *Pipeline {
	return &Pipeline{plugins: plugins}
}

// Run executes every plugin in order and concatenates the findings. A
// failing plugin aborts the run; partial findings are not reported.
func (p *Pipeline) Run(ctx context.Context) (Report, error) {
	report := EmptyReport()
	for _, plugin := range p.plugins {
		findings, err := plugin.Run(ctx)
		if err != nil {
			return Report{}, fmt.Errorf("plugin %s: %w", plugin.Name(), err)
		}
		report.Findings = append(report.Findings, findings...)
	}
	return report, nil
}
