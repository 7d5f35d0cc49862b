package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/linesmerrill/agendajur-api/api"
	"github.com/linesmerrill/agendajur-api/config"
	"github.com/linesmerrill/agendajur-api/session"
	"github.com/linesmerrill/agendajur-api/templates/text"
)

// Log exported for testing purposes
type Log struct {
	Svc      *session.Service
	Location *time.Location
}

// LogsHandler returns the most recent audit entries, newest first
func (l Log) LogsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	entries, err := l.Svc.Logs(ctx, api.SessionFrom(r.Context()))
	if err != nil {
		serviceError("failed to get logs", w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// ReportHandler downloads the audit entries as a plain text report
func (l Log) ReportHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	entries, err := l.Svc.Logs(ctx, api.SessionFrom(r.Context()))
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		serviceError("failed to get logs", w, err)
		return
	}

	var buf bytes.Buffer
	if err := text.WriteReport(&buf, entries, l.Location); err != nil {
		w.Header().Set("Content-Type", "application/json")
		config.ErrorStatus("failed to render report", http.StatusInternalServerError, w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", text.ReportFileName))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
