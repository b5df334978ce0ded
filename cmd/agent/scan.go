package main

import (
	"context"
	"fmt"
	"os"

	"github.com/alecthomas/kingpin/v2"

	"github.com/panthersecurity/panther/pkg/agent"
)

// ScanCommandInput contains the input for the scan command.
type ScanCommandInput struct {
	Name         string
	PluginFile   string
	ManifestFile string
}

// ConfigureScanCommand sets up the scan command with kingpin.
func ConfigureScanCommand(app *kingpin.Application) {
	input := ScanCommandInput{}

	cmd := app.Command("scan", "Run a named check plugin")

	cmd.Arg("name", "The check to run").
		Required().
		EnumVar(&input.Name, "perimeter", "rate-limit", "authz", "mobile-build")

	cmd.Flag("plugin", "Run a sandboxed WASM module instead of the builtin check").
		ExistingFileVar(&input.PluginFile)

	cmd.Flag("manifest", "Build manifest path for the mobile-build check").
		StringVar(&input.ManifestFile)

	cmd.Action(func(c *kingpin.ParseContext) error {
		if err := ScanCommand(context.Background(), input); err != nil {
			fmt.Fprintf(os.Stderr, "scan failed: %v\n", err)
			os.Exit(1)
		}
		return nil
	})
}

// ScanCommand runs one plugin and prints its finding count.
func ScanCommand(ctx context.Context, input ScanCommandInput) error {
	plugin, err := resolvePlugin(input)
	if err != nil {
		return err
	}

	report, err := agent.NewPipeline(plugin).Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("scan %s completed. findings: %d\n", input.Name, len(report.Findings))
	return nil
}

func resolvePlugin(input ScanCommandInput) (agent.Plugin, error) {
	if input.PluginFile != "" {
		return agent.LoadWASMPlugin(input.Name, input.PluginFile)
	}
	if input.Name == "mobile-build" && input.ManifestFile != "" {
		return agent.MobileBuildScan{ManifestPath: input.ManifestFile}, nil
	}
	return agent.ByName(input.Name)
}
