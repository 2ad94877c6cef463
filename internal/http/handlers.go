package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"findash/internal/amqp"
	"findash/internal/core"
	"findash/internal/export"
	"findash/internal/log"
	"findash/internal/services"
)

const maxImportBody = 4 << 10

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

// handleReady runs every readiness check under a shared deadline.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	code := http.StatusOK
	checks := make(map[string]string, len(s.checks)+1)
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			checks[name] = "failed: " + err.Error()
			status = "not_ready"
			code = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	if s.publisher != nil {
		checks["imports"] = "ok"
	} else {
		checks["imports"] = "not_configured"
	}
	checks["rate_limiter"] = fmt.Sprintf("ok (%d clients)", s.limiter.ActiveClients())

	writeJSON(w, code, map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := s.dashboard.Build(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handleKPIs serves the headline snapshots, or those named by repeated
// ?metric= parameters.
func (s *Server) handleKPIs(w http.ResponseWriter, r *http.Request) {
	var metrics []string
	for _, m := range r.URL.Query()["metric"] {
		if m = strings.TrimSpace(m); m != "" {
			metrics = append(metrics, m)
		}
	}
	kpis, err := s.dashboard.KPIs(r.Context(), metrics...)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"kpis": kpis})
}

func (s *Server) handleKPI(w http.ResponseWriter, r *http.Request) {
	metric, ok := pathMetric(w, r)
	if !ok {
		return
	}
	kpis, err := s.dashboard.KPIs(r.Context(), metric)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, kpis[0])
}

func (s *Server) handleVariance(w http.ResponseWriter, r *http.Request) {
	table, err := s.dashboard.Variance(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, table)
}

// handleVarianceXLSX renders the workbook into memory first so a failed
// export still gets a JSON error instead of a truncated download.
func (s *Server) handleVarianceXLSX(w http.ResponseWriter, r *http.Request) {
	d, err := s.dashboard.Build(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := export.WriteVariance(&buf, d.Variance, d.KPIs, s.dashboard.Catalog()); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Variance export failed",
			log.FieldError, err.Error())
		writeError(w, r, http.StatusInternalServerError, "export failed")
		return
	}
	name := "variance.xlsx"
	if len(d.Months) > 0 {
		name = "variance-" + d.Months[len(d.Months)-1] + ".xlsx"
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	metric, ok := pathMetric(w, r)
	if !ok {
		return
	}
	series, err := s.dashboard.Series(r.Context(), metric)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, series)
}

type importRequest struct {
	Sources []core.Source `json:"sources"`
}

// handleCreateImport enqueues a restage of the requested sources, or of
// both when the body is empty.
func (s *Server) handleCreateImport(w http.ResponseWriter, r *http.Request) {
	if s.publisher == nil {
		writeError(w, r, http.StatusServiceUnavailable, "imports are not configured")
		return
	}

	var req importRequest
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, r, http.StatusBadRequest, "unreadable request body")
		return
	}
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	msg := amqp.NewImportMessage(req.Sources...)
	if err := msg.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	logger := log.FromContext(r.Context())
	if err := s.publisher.PublishImport(r.Context(), msg); err != nil {
		logger.ErrorContext(r.Context(), "Failed to enqueue import",
			log.FieldImportID, msg.ID,
			log.FieldError, err.Error())
		writeError(w, r, http.StatusServiceUnavailable, "import queue unavailable")
		return
	}
	logger.InfoContext(r.Context(), "Import enqueued",
		log.FieldImportID, msg.ID,
		"sources", msg.Sources)

	w.Header().Set("Location", "/api/imports/"+msg.ID)
	writeJSON(w, http.StatusAccepted, msg)
}

func pathMetric(w http.ResponseWriter, r *http.Request) (string, bool) {
	metric := strings.TrimSpace(r.PathValue("metric"))
	if metric == "" {
		writeError(w, r, http.StatusBadRequest, "metric is required")
		return "", false
	}
	return metric, true
}

// writeServiceError maps dashboard errors to responses. An empty dataset is
// a normal "no data yet" state, not a failure.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, core.ErrEmptyDataset):
		writeJSON(w, http.StatusOK, map[string]any{
			"empty":   true,
			"message": "No data yet: both sources are empty.",
		})
	case errors.Is(err, services.ErrSourceUnavailable):
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Source unavailable",
			log.FieldError, err.Error())
		writeError(w, r, http.StatusBadGateway, "data source unavailable")
	default:
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Dashboard request failed",
			log.FieldError, err.Error())
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
