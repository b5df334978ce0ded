// Package agent implements the CI-side scan agent: check plugins, the
// pipeline that runs them, and report assembly and upload toward the
// control plane.
package agent

import "github.com/panthersecurity/panther/pkg/risk"

// Finding is a single check observation. Details stays a plain string
// inside the agent; the upload mapping wraps it into the evidence object.
type Finding struct {
	Category string        `json:"category"`
	Severity risk.Severity `json:"severity"`
	Details  string        `json:"details,omitempty"`
}

// Report collects the findings of one pipeline run. Its JSON encoding is
// what lands in the upload artifact payload.
type Report struct {
	ReportID string    `json:"report_id"`
	AppID    string    `json:"app_id"`
	Env      string    `json:"env"`
	Source   string    `json:"source"`
	Findings []Finding `json:"findings"`
}

// EmptyReport is the starting point of every pipeline run: local CLI
// provenance and no findings yet.
func EmptyReport() Report {
	return Report{
		ReportID: "report_000",
		AppID:    "unknown",
		Env:      "local",
		Source:   "cli",
		Findings: []Finding{},
	}
}
