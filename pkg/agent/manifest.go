package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/Masterminds/semver/v3"

	"github.com/panthersecurity/panther/pkg/risk"
)

// defaultManifestPath is where mobile pipelines drop the build manifest
// next to their build output.
const defaultManifestPath = "panther-build.json"

// BuildManifest describes a finished mobile build: what it was built
// against and what the pipeline considers the supported minimums.
type BuildManifest struct {
	Platform     string            `json:"platform"`
	OSVersion    string            `json:"os_version"`
	MinOSVersion string            `json:"min_os_version"`
	Dependencies []BuildDependency `json:"dependencies"`
}

type BuildDependency struct {
	Name       string `json:"name"`
	Version    string `json:"version"`
	MinVersion string `json:"min_version"`
}

// MobileBuildScan checks a local build manifest for outdated targets. A
// missing manifest is not an error; most pipelines do not produce one.
type MobileBuildScan struct {
	// ManifestPath overrides the manifest location. Empty means
	// defaultManifestPath in the working directory.
	ManifestPath string
}

func (MobileBuildScan) Name() string { return "mobile-build" }

func (s MobileBuildScan) Run(context.Context) ([]Finding, error) {
	path := s.ManifestPath
	if path == "" {
		path = defaultManifestPath
	}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read build manifest: %w", err)
	}
	var manifest BuildManifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse build manifest %s: %w", path, err)
	}
	return manifest.check(), nil
}

// check compares built versions against the manifest's minimums. Versions
// that do not parse as semver are skipped rather than flagged; build
// systems emit all sorts of strings.
func (m BuildManifest) check() []Finding {
	var findings []Finding
	if versionBelow(m.OSVersion, m.MinOSVersion) {
		findings = append(findings, Finding{
			Category: "outdated-os",
			Severity: risk.SeverityMedium,
			Details:  fmt.Sprintf("os %s is below the supported minimum %s", m.OSVersion, m.MinOSVersion),
		})
	}
	for _, dep := range m.Dependencies {
		if versionBelow(dep.Version, dep.MinVersion) {
			findings = append(findings, Finding{
				Category: "outdated-dependency",
				Severity: risk.SeverityLow,
				Details:  fmt.Sprintf("%s %s is below the supported minimum %s", dep.Name, dep.Version, dep.MinVersion),
			})
		}
	}
	return findings
}

// versionBelow reports v < minimum when both parse as semver.
func versionBelow(v, minimum string) bool {
	if v == "" || minimum == "" {
		return false
	}
	current, err := semver.NewVersion(v)
	if err != nil {
		return false
	}
	floor, err := semver.NewVersion(minimum)
	if err != nil {
		return false
	}
	return current.LessThan(floor)
}
