package policyserver

import (
	"encoding/base64"
	"net/http"

	"github.com/panthersecurity/panther/pkg/api"
	"github.com/panthersecurity/panther/pkg/audit"
	"github.com/panthersecurity/panther/pkg/observability"
	"github.com/panthersecurity/panther/pkg/wire"
)

func (s *Server) handleReportUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		api.WriteMethodNotAllowed(w)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req wire.ReportUpload
	if err := wire.DecodeStrict(r.Body, &req); err != nil {
		api.WriteBadRequest(w, "invalid request body")
		return
	}
	if err := wire.ValidateReportUpload(&req); err != nil {
		api.WriteBadRequest(w, err.Error())
		return
	}

	ctx := r.Context()
	inserted, err := s.reports.Insert(ctx, &req)
	if err != nil {
		api.WriteInternal(w, err)
		return
	}

	// The database row is the source of truth; archival failures are logged
	// and the upload still succeeds.
	address := s.archiveArtifacts(r, &req)

	metadata := map[string]interface{}{
		"app_id":    req.AppID,
		"env":       req.Env,
		"source":    req.Source,
		"findings":  len(req.Findings),
		"duplicate": !inserted,
	}
	if address != "" {
		metadata["archive_address"] = address
	}
	if err := s.audit.Record(ctx, audit.EventMutation, "report.upload", req.ReportID, metadata); err != nil {
		s.logger.Warn("audit record failed", "error", err)
	}

	api.WriteJSON(w, http.StatusOK, wire.StatusAccepted{Status: "accepted"})
}

// archiveArtifacts decodes the report payload and stores it in the archive,
// returning the content address or "" when archival is off or fails.
func (s *Server) archiveArtifacts(r *http.Request, req *wire.ReportUpload) string {
	if s.archive == nil {
		return ""
	}

	raw, err := base64.StdEncoding.DecodeString(req.Artifacts.Payload)
	if err != nil {
		s.logger.Warn("report artifacts payload is not valid base64",
			"report_id", req.ReportID, "error", err)
		return ""
	}

	address, err := s.archive.Put(r.Context(), raw)
	if err != nil {
		s.logger.Warn("failed to archive report artifacts",
			"report_id", req.ReportID, "error", err)
		return ""
	}

	s.logger.Info("archived report artifacts",
		"report_id", req.ReportID,
		"format", req.Artifacts.Format,
		"address", address,
	)
	observability.AddSpanEvent(r.Context(), "report.archived",
		observability.AttrArchiveAddress.String(address))
	return address
}
