package apihttp

import (
	"errors"
	"net/http"
	"time"

	maintenanceapp "efd-cmms-bridge/internal/maintenance/application"
	"efd-cmms-bridge/internal/report"
)

type checkpointView struct {
	AssetID           string `json:"asset_id"`
	LastSeenEdgeCount int64  `json:"last_seen_edge_count"`
	LastUpdate        string `json:"last_update"`
}

type sweepView struct {
	maintenanceapp.Report
	Created []string `json:"created,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"time":     time.Now().UTC().Format(timeLayout),
		"channels": s.channels.Len(),
	})
}

// handleChannels serves GET /api/v1/channels.
func (s *Server) handleChannels(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"channels": s.channels.All()})
}

// handleCheckpoints serves GET /api/v1/checkpoints.
func (s *Server) handleCheckpoints(w http.ResponseWriter, r *http.Request) {
	records, err := s.checkpoints.Checkpoints(r.Context())
	if err != nil {
		s.logger.Error("api: list checkpoints", "err", err)
		respondError(w, http.StatusInternalServerError, "list checkpoints failed")
		return
	}
	views := make([]checkpointView, 0, len(records))
	for _, rec := range records {
		view := checkpointView{AssetID: rec.AssetID, LastSeenEdgeCount: rec.LastSeenEdgeCount}
		if !rec.LastUpdate.IsZero() {
			view.LastUpdate = rec.LastUpdate.Format(timeLayout)
		}
		views = append(views, view)
	}
	respondJSON(w, http.StatusOK, map[string]any{"checkpoints": views})
}

// handleLastSweep serves GET /api/v1/sweeps/last.
func (s *Server) handleLastSweep(w http.ResponseWriter, _ *http.Request) {
	last, ok := s.sweeper.LastReport()
	if !ok {
		respondError(w, http.StatusNotFound, "no sweep has run yet")
		return
	}
	respondJSON(w, http.StatusOK, sweepView{Report: last, Created: last.Created()})
}

// handleSweep serves POST /api/v1/sweeps.
func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	rep, err := s.sweeper.Sweep(r.Context())
	switch {
	case errors.Is(err, maintenanceapp.ErrSweepInProgress):
		respondError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		s.logger.Error("api: sweep", "err", err)
		respondJSON(w, http.StatusBadGateway, sweepView{Report: rep, Created: rep.Created()})
		return
	}
	respondJSON(w, http.StatusOK, sweepView{Report: rep, Created: rep.Created()})
}

// handlePoll serves POST /api/v1/polls.
func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	results, err := s.poller.PollAll(r.Context(), s.channels.All())
	body := map[string]any{"results": results}
	if err != nil {
		body["error"] = err.Error()
	}
	respondJSON(w, http.StatusOK, body)
}

// handleReport serves GET /api/v1/reports/current?format=pdf|xlsx.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	format := report.Format(r.URL.Query().Get("format"))
	if format == "" {
		format = report.FormatXLSX
	}
	if format != report.FormatPDF && format != report.FormatXLSX {
		respondError(w, http.StatusBadRequest, "format must be pdf or xlsx")
		return
	}
	snap, err := s.reports.Build(r.Context(), s.channels.All())
	if err != nil {
		s.logger.Error("api: build report", "err", err)
		respondError(w, http.StatusInternalServerError, "build report failed")
		return
	}
	data, err := report.Render(snap, format)
	if err != nil {
		s.logger.Error("api: render report", "err", err)
		respondError(w, http.StatusInternalServerError, "render report failed")
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="current-values.`+string(format)+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
