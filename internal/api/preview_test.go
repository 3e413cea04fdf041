package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"subclean/internal/logging"
	"subclean/internal/testsupport"
	"subclean/internal/workflow"
)

type stubPreviewer struct {
	opts workflow.PreviewOptions
	path string
	out  workflow.Preview
	err  error
}

func (p *stubPreviewer) PreviewFrame(_ context.Context, inputPath string, opts workflow.PreviewOptions) (workflow.Preview, error) {
	p.path = inputPath
	p.opts = opts
	return p.out, p.err
}

func newPreviewServer(t *testing.T, previewer framePreviewer) *Server {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	s := NewServer(cfg, testsupport.MustOpenStore(t, cfg), logging.NewNop())
	s.previewer = previewer
	return s
}

func previewRequest(t *testing.T, fields map[string]string, withFile bool) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("write field %s: %v", key, err)
		}
	}
	if withFile {
		part, err := writer.CreateFormFile("video", "session.mp4")
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write([]byte("fake video bytes")); err != nil {
			t.Fatalf("write file part: %v", err)
		}
	}
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/preview", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestPreviewReturnsBeforeAfterPair(t *testing.T) {
	stub := &stubPreviewer{out: workflow.Preview{
		FrameNumber: 12,
		Width:       640,
		Height:      360,
		MaskedBoxes: 1,
		BeforePNG:   "QUJD",
		AfterPNG:    "REVG",
	}}
	s := newPreviewServer(t, stub)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, previewRequest(t, map[string]string{
		"frame_number":   "12",
		"inpaint_radius": "6",
	}, true))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if stub.opts.FrameNumber != 12 || stub.opts.InpaintRadius != 6 {
		t.Fatalf("options not forwarded: %+v", stub.opts)
	}
	var resp workflow.Preview
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.BeforePNG != "QUJD" || resp.AfterPNG != "REVG" || resp.MaskedBoxes != 1 {
		t.Fatalf("response pair mismatch: %+v", resp)
	}

	// The landed upload is temporary and must be gone once the request ends.
	if _, err := os.Stat(stub.path); !os.IsNotExist(err) {
		t.Fatalf("preview input still on disk at %s: %v", stub.path, err)
	}
}

func TestPreviewRejectsNegativeFrameNumber(t *testing.T) {
	stub := &stubPreviewer{}
	s := newPreviewServer(t, stub)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, previewRequest(t, map[string]string{"frame_number": "-1"}, true))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if stub.path != "" {
		t.Fatal("previewer invoked despite invalid frame_number")
	}
}

func TestPreviewRequiresVideoFile(t *testing.T) {
	s := newPreviewServer(t, &stubPreviewer{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, previewRequest(t, map[string]string{"frame_number": "0"}, false))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestPreviewRejectsNonMultipart(t *testing.T) {
	s := newPreviewServer(t, &stubPreviewer{})

	req := httptest.NewRequest(http.MethodPost, "/preview", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("status = %d, want 415", rec.Code)
	}
}

func TestPreviewProcessingFailure(t *testing.T) {
	s := newPreviewServer(t, &stubPreviewer{err: errors.New("decode blew up")})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, previewRequest(t, nil, true))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["error"] != "preview failed" {
		t.Fatalf("error message = %q", resp["error"])
	}
}
