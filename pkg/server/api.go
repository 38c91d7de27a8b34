package server

import (
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"gcodeview/pkg/analyzer"
	"gcodeview/pkg/errors"
	"gcodeview/pkg/history"
	"gcodeview/pkg/model"
	"gcodeview/pkg/source"
	"gcodeview/pkg/worker"
)

// handleAnalyze parses and analyzes one file in a throwaway worker. The
// body is the G-code text; with an empty body the "source" query parameter
// may name an s3:// object instead.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	filename := q.Get("filename")

	var (
		lines []model.Line
		err   error
	)
	if loc := q.Get("source"); loc != "" && r.ContentLength <= 0 {
		if !strings.HasPrefix(loc, "s3://") || s.cfg.Loader == nil {
			writeJSONError(w, errors.SourceError(loc, fmt.Errorf("only s3:// sources are served")), http.StatusBadRequest)
			return
		}
		lines, err = s.cfg.Loader.Load(r.Context(), loc)
		if filename == "" {
			filename = loc
		}
	} else {
		lines, err = source.ReadLines(r.Body, r.ContentLength)
		if err != nil {
			err = errors.SourceError("request body", err)
		}
	}
	if err != nil {
		writeJSONError(w, err, http.StatusBadRequest)
		return
	}
	if filename == "" {
		filename = "untitled.gcode"
	}

	wk := worker.New(s.cfg.Worker)
	defer wk.Close()

	res, err := wk.ParseAndAnalyze(r.Context(), lines, nil, nil)
	if err != nil {
		writeJSONError(w, err, http.StatusInternalServerError)
		return
	}

	entry := history.NewEntry(filename, len(lines), res)
	if err := s.history.Add(r.Context(), entry); err != nil {
		s.logger.WithError(err).WithField("filename", filename).Error("failed to save analysis")
		entry.ID = ""
	}

	writeJSON(w, map[string]any{
		"result": struct {
			ID       string           `json:"id,omitempty"`
			Filename string           `json:"filename"`
			Lines    int              `json:"lines"`
			Analysis *analyzer.Result `json:"analysis"`
		}{entry.ID, filename, len(lines), res},
	})
}

func (s *Server) registerHistoryEndpoints(mux *http.ServeMux) {
	mux.HandleFunc("/api/history/list", s.handleHistoryList)
	mux.HandleFunc("/api/history/totals", s.handleHistoryTotals)
	mux.HandleFunc("/api/history/job", s.handleHistoryJob)
	mux.HandleFunc("/api/history/reset", s.handleHistoryReset)
}

// unixTime converts fractional Unix seconds; zero stays the zero time.
func unixTime(sec float64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(frac*1e9)).UTC()
}

func (s *Server) handleHistoryList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	opts := history.ListOptions{Limit: 50, Order: "desc"}
	if l := q.Get("limit"); l != "" {
		fmt.Sscanf(l, "%d", &opts.Limit)
	}
	if st := q.Get("start"); st != "" {
		fmt.Sscanf(st, "%d", &opts.Start)
	}

	var since, before float64
	if v := q.Get("since"); v != "" {
		fmt.Sscanf(v, "%f", &since)
	}
	if v := q.Get("before"); v != "" {
		fmt.Sscanf(v, "%f", &before)
	}
	opts.Since, opts.Before = unixTime(since), unixTime(before)

	if o := q.Get("order"); o != "" {
		opts.Order = o
	}

	entries, count, err := s.history.List(r.Context(), opts)
	if err != nil {
		writeJSONError(w, err, http.StatusInternalServerError)
		return
	}
	// Listings carry summaries only
	for i := range entries {
		entries[i].Result = nil
	}
	if entries == nil {
		entries = []history.Entry{}
	}

	writeJSON(w, map[string]any{
		"result": map[string]any{
			"count": count,
			"jobs":  entries,
		},
	})
}

func (s *Server) handleHistoryTotals(w http.ResponseWriter, r *http.Request) {
	totals, err := s.history.Totals(r.Context())
	if err != nil {
		writeJSONError(w, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{
		"result": map[string]any{
			"job_totals": totals,
		},
	})
}

func (s *Server) handleHistoryJob(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeJSONError(w, errors.HistoryError("job", fmt.Errorf("missing id parameter")), http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		entry, err := s.history.Get(r.Context(), id)
		if err != nil {
			writeJSONError(w, err, statusFor(err))
			return
		}
		writeJSON(w, map[string]any{"result": map[string]any{"job": entry}})

	case http.MethodDelete:
		if err := s.history.Delete(r.Context(), id); err != nil {
			writeJSONError(w, err, statusFor(err))
			return
		}
		writeJSON(w, map[string]any{
			"result": map[string]any{
				"deleted_jobs": []string{id},
			},
		})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleHistoryReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	last, err := s.history.Totals(r.Context())
	if err == nil {
		err = s.history.Reset(r.Context())
	}
	if err != nil {
		writeJSONError(w, err, http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{
		"result": map[string]any{
			"last_totals": last,
		},
	})
}

func statusFor(err error) int {
	if err == history.ErrNotFound {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
