package api

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"subclean/internal/deps"
	"subclean/internal/intake"
	"subclean/internal/logging"
	"subclean/internal/queue"
	"subclean/internal/workflow"
)

// jsonBodyLimit caps JSON submissions; video bytes arrive as multipart or by
// URL, never inline.
const jsonBodyLimit = 1 << 20

type cleanRequest struct {
	FileURL     string `json:"file_url"`
	CallbackURL string `json:"callback_url"`
	workflow.Overrides
}

// handleClean accepts a new task. The video arrives either as a multipart
// upload under the "video" field or as a file_url the daemon downloads.
// Submission only lands the input and enqueues; processing happens in the
// worker pool.
func (s *Server) handleClean(w http.ResponseWriter, r *http.Request) {
	maxBytes := s.cfg.MaxInputBytes()

	var (
		req cleanRequest
		err error
	)
	contentType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var landed intake.Result
	switch {
	case contentType == "multipart/form-data":
		if maxBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes+jsonBodyLimit)
		}
		if err = r.ParseMultipartForm(32 << 20); err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid multipart request")
			return
		}
		req = cleanRequestFromForm(r)

		file, header, formErr := r.FormFile("video")
		switch {
		case formErr == nil:
			defer file.Close()
			landed, err = intake.SaveUpload(file, header, s.cfg.Paths.WorkDir, maxBytes)
		case req.FileURL != "":
			landed, err = intake.Download(r.Context(), s.client, req.FileURL, s.cfg.Paths.WorkDir, maxBytes)
		default:
			s.respondError(w, http.StatusBadRequest, "request needs a video file or a file_url")
			return
		}
	case contentType == "application/json":
		r.Body = http.MaxBytesReader(w, r.Body, jsonBodyLimit)
		if err = json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid json request")
			return
		}
		if strings.TrimSpace(req.FileURL) == "" {
			s.respondError(w, http.StatusBadRequest, "file_url is required")
			return
		}
		landed, err = intake.Download(r.Context(), s.client, req.FileURL, s.cfg.Paths.WorkDir, maxBytes)
	default:
		s.respondError(w, http.StatusUnsupportedMediaType, "use multipart/form-data or application/json")
		return
	}

	if err != nil {
		switch {
		case errors.Is(err, intake.ErrTooLarge):
			s.respondError(w, http.StatusRequestEntityTooLarge, err.Error())
		case errors.Is(err, intake.ErrEmptyInput):
			s.respondError(w, http.StatusBadRequest, err.Error())
		default:
			s.logger.Warn("intake failed", logging.Error(err))
			s.respondError(w, http.StatusBadRequest, "could not obtain input video")
		}
		return
	}

	configJSON, err := workflow.MarshalTaskConfig(workflow.SnapshotConfig(s.cfg, req.Overrides))
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "could not snapshot task config")
		return
	}

	task, err := s.store.NewTask(r.Context(), landed.Path, req.FileURL, strings.TrimSpace(req.CallbackURL), configJSON)
	if err != nil {
		s.logger.Error("enqueue failed", logging.Error(err))
		s.respondError(w, http.StatusInternalServerError, "could not enqueue task")
		return
	}

	s.logger.Info("task submitted",
		logging.String(logging.FieldTaskID, task.UUID),
		logging.Int64("input_bytes", landed.Size))
	s.respondJSON(w, http.StatusAccepted, task.Payload())
}

// handlePreview cleans one frame of an uploaded video synchronously and
// returns the before/after pair, so inpaint parameters can be tuned without
// queueing a task. The landed upload is removed when the request finishes.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	maxBytes := s.cfg.MaxInputBytes()
	contentType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if contentType != "multipart/form-data" {
		s.respondError(w, http.StatusUnsupportedMediaType, "use multipart/form-data")
		return
	}
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes+jsonBodyLimit)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid multipart request")
		return
	}

	opts := workflow.PreviewOptions{
		FrameNumber:   formInt(r, "frame_number"),
		MaxResolution: formInt(r, "max_resolution"),
		InpaintRadius: formInt(r, "inpaint_radius"),
	}
	if opts.FrameNumber < 0 {
		s.respondError(w, http.StatusBadRequest, "frame_number must not be negative")
		return
	}

	file, header, err := r.FormFile("video")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "request needs a video file")
		return
	}
	defer file.Close()

	landed, err := intake.SaveUpload(file, header, s.cfg.Paths.WorkDir, maxBytes)
	if err != nil {
		switch {
		case errors.Is(err, intake.ErrTooLarge):
			s.respondError(w, http.StatusRequestEntityTooLarge, err.Error())
		case errors.Is(err, intake.ErrEmptyInput):
			s.respondError(w, http.StatusBadRequest, err.Error())
		default:
			s.logger.Warn("intake failed", logging.Error(err))
			s.respondError(w, http.StatusBadRequest, "could not obtain input video")
		}
		return
	}
	defer os.Remove(landed.Path)

	preview, err := s.previewer.PreviewFrame(r.Context(), landed.Path, opts)
	if err != nil {
		if workflow.FailureKindOf(err) == queue.FailureInput {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("preview failed", logging.Error(err))
		s.respondError(w, http.StatusInternalServerError, "preview failed")
		return
	}
	s.respondJSON(w, http.StatusOK, preview)
}

// handleTaskStatus reports the current state of one task.
func (s *Server) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	task, err := s.store.GetByUUID(r.Context(), id)
	if err != nil {
		s.logger.Error("task lookup failed", logging.Error(err))
		s.respondError(w, http.StatusInternalServerError, "task lookup failed")
		return
	}
	if task == nil {
		s.respondError(w, http.StatusNotFound, "task not found")
		return
	}
	s.respondJSON(w, http.StatusOK, task.Payload())
}

type healthResponse struct {
	Status       string          `json:"status"`
	Dependencies map[string]bool `json:"dependencies"`
	Queue        queueHealth     `json:"queue"`
}

type queueHealth struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// handleHealth reports binary availability and queue counts. A missing
// required binary degrades the probe to 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	summary, err := s.store.Health(r.Context())
	if err != nil {
		s.logger.Error("queue health failed", logging.Error(err))
		s.respondError(w, http.StatusInternalServerError, "queue health failed")
		return
	}

	resp := healthResponse{
		Status:       "ok",
		Dependencies: make(map[string]bool),
		Queue: queueHealth{
			Total:      summary.Total,
			Pending:    summary.Pending,
			Processing: summary.Processing,
			Completed:  summary.Completed,
			Failed:     summary.Failed,
		},
	}
	code := http.StatusOK
	for _, status := range deps.CheckBinaries(deps.Required(s.cfg)) {
		resp.Dependencies[strings.ToLower(status.Name)] = status.Available
		if !status.Available && !status.Optional {
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}
	s.respondJSON(w, code, resp)
}

func cleanRequestFromForm(r *http.Request) cleanRequest {
	req := cleanRequest{
		FileURL:     strings.TrimSpace(r.FormValue("file_url")),
		CallbackURL: strings.TrimSpace(r.FormValue("callback_url")),
	}
	req.MaxResolution = formInt(r, "max_resolution")
	req.InpaintRadius = formInt(r, "inpaint_radius")
	req.IntensityThreshold = formFloat(r, "intensity_threshold")
	return req
}

func formInt(r *http.Request, key string) int {
	value, err := strconv.Atoi(strings.TrimSpace(r.FormValue(key)))
	if err != nil {
		return 0
	}
	return value
}

func formFloat(r *http.Request, key string) float64 {
	value, err := strconv.ParseFloat(strings.TrimSpace(r.FormValue(key)), 64)
	if err != nil {
		return 0
	}
	return value
}

func (s *Server) respondJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("write response failed", logging.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, code int, message string) {
	s.respondJSON(w, code, map[string]string{"error": message})
}
