package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/alecthomas/kingpin/v2"

	"github.com/panthersecurity/panther/pkg/agent"
)

// ReportCommandInput contains the input for the report command.
type ReportCommandInput struct {
	Options agent.UploadOptions
	DryRun  bool
}

// ConfigureReportCommand sets up the report command with kingpin.
func ConfigureReportCommand(app *kingpin.Application) {
	input := ReportCommandInput{}

	cmd := app.Command("report", "Run all check plugins and upload a findings report")

	cmd.Flag("endpoint", "Report upload endpoint").
		Default("http://localhost:8082/v1/reports/upload").
		StringVar(&input.Options.Endpoint)

	cmd.Flag("app-id", "Application identifier").
		Default("fintech.mobile").
		StringVar(&input.Options.AppID)

	cmd.Flag("env", "Deployment environment").
		Default("local").
		StringVar(&input.Options.Env)

	cmd.Flag("source", "Report source").
		Default("ci").
		StringVar(&input.Options.Source)

	cmd.Flag("token", "Bearer token for the upload").
		Envar("AGENT_API_TOKEN").
		StringVar(&input.Options.Token)

	cmd.Flag("pipeline-provider", "CI provider name").
		StringVar(&input.Options.PipelineProvider)

	cmd.Flag("pipeline-run-id", "CI run identifier").
		StringVar(&input.Options.PipelineRunID)

	cmd.Flag("dry-run", "Print the upload payload instead of posting it").
		BoolVar(&input.DryRun)

	cmd.Action(func(c *kingpin.ParseContext) error {
		ReportCommand(context.Background(), input)
		return nil
	})
}

// ReportCommand runs every builtin plugin and ships the resulting report.
func ReportCommand(ctx context.Context, input ReportCommandInput) {
	report, err := agent.NewPipeline(agent.Builtins()...).Run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "scan failed: %v\n", err)
		os.Exit(1)
	}
	// The upload identity comes from the flags; the archived report keeps
	// its local CLI provenance.
	upload, err := agent.BuildUpload(report, input.Options)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build report payload: %v\n", err)
		os.Exit(1)
	}

	if input.DryRun {
		pretty, err := json.MarshalIndent(upload, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to build report payload: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(pretty))
		return
	}

	if err := agent.NewUploader().Upload(ctx, upload, input.Options); err != nil {
		fmt.Fprintf(os.Stderr, "report upload failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("report uploaded. findings: %d\n", len(report.Findings))
}
