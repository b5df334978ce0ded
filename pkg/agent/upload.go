package agent

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/panthersecurity/panther/pkg/wire"
)

// UploadOptions carries the identity and destination of a report upload.
type UploadOptions struct {
	Endpoint string
	AppID    string
	Env      string
	Source   string

	// Token is the bearer token; empty sends no Authorization header.
	Token string

	// PipelineProvider and PipelineRunID name the CI run. The pipeline
	// block is attached only when both are set.
	PipelineProvider string
	PipelineRunID    string
}

// BuildUpload assembles the wire payload for a report: a fresh report_id,
// the report JSON base64-wrapped as the artifact, and the findings mapped
// to their wire shape.
func BuildUpload(report Report, opts UploadOptions) (wire.ReportUpload, error) {
	raw, err := json.Marshal(report)
	if err != nil {
		return wire.ReportUpload{}, fmt.Errorf("failed to encode report: %w", err)
	}

	upload := wire.ReportUpload{
		ReportID: uuid.NewString(),
		AppID:    opts.AppID,
		Env:      opts.Env,
		Source:   opts.Source,
		Artifacts: wire.ReportArtifacts{
			Format:  "json",
			Payload: base64.StdEncoding.EncodeToString(raw),
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	if opts.PipelineProvider != "" && opts.PipelineRunID != "" {
		upload.Pipeline = &wire.PipelineInfo{
			Provider: opts.PipelineProvider,
			RunID:    opts.PipelineRunID,
		}
	}

	for _, f := range report.Findings {
		wf, err := findingToWire(f)
		if err != nil {
			return wire.ReportUpload{}, err
		}
		upload.Findings = append(upload.Findings, wf)
	}

	return upload, nil
}

// findingToWire maps an agent finding onto the core contract. The agent's
// free-form details string travels inside the evidence object, which is
// where the intake expects arbitrary context.
func findingToWire(f Finding) (wire.Finding, error) {
	out := wire.Finding{Category: f.Category, Severity: string(f.Severity)}
	if f.Details != "" {
		evidence, err := json.Marshal(map[string]string{"details": f.Details})
		if err != nil {
			return wire.Finding{}, fmt.Errorf("failed to encode finding evidence: %w", err)
		}
		out.Evidence = evidence
	}
	return out, nil
}

// Uploader posts report payloads to the control plane.
type Uploader struct {
	client *http.Client
}

// NewUploader builds an uploader with a 30-second request timeout.
func NewUploader() *Uploader {
	return &Uploader{client: &http.Client{Timeout: 30 * time.Second}}
}

// WithHTTPClient swaps the underlying HTTP client, for tests.
func (u *Uploader) WithHTTPClient(hc *http.Client) *Uploader {
	u.client = hc
	return u
}

// Upload posts the payload to opts.Endpoint with bearer auth when a token
// is set. Any non-2xx answer is an error carrying the response status.
func (u *Uploader) Upload(ctx context.Context, upload wire.ReportUpload, opts UploadOptions) error {
	body, err := json.Marshal(upload)
	if err != nil {
		return fmt.Errorf("failed to encode upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, opts.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if opts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+opts.Token)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("upload failed: %s", resp.Status)
	}
	return nil
}
