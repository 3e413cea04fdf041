package intake

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
)

func multipartRequest(t *testing.T, filename string, content []byte) (multipart.File, *multipart.FileHeader) {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("video", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write part: %v", err)
	}
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/clean", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	file, header, err := req.FormFile("video")
	if err != nil {
		t.Fatalf("FormFile: %v", err)
	}
	t.Cleanup(func() { file.Close() })
	return file, header
}

func TestSaveUpload(t *testing.T) {
	dir := t.TempDir()
	file, header := multipartRequest(t, "trading session.mp4", []byte("fake video bytes"))

	res, err := SaveUpload(file, header, dir, 1<<20)
	if err != nil {
		t.Fatalf("SaveUpload: %v", err)
	}
	if res.Size != int64(len("fake video bytes")) {
		t.Fatalf("size = %d", res.Size)
	}
	if !strings.HasSuffix(res.Path, "-trading_session.mp4") {
		t.Fatalf("path does not keep sanitized original name: %s", res.Path)
	}
	data, err := os.ReadFile(res.Path)
	if err != nil || string(data) != "fake video bytes" {
		t.Fatalf("landed content mismatch: %q, %v", data, err)
	}
}

func TestSaveUploadRejectsOversize(t *testing.T) {
	dir := t.TempDir()
	file, header := multipartRequest(t, "big.mp4", bytes.Repeat([]byte{0x42}, 2048))

	_, err := SaveUpload(file, header, dir, 1024)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("partial file left behind: %v", entries)
	}
}

func TestSaveUploadRejectsEmpty(t *testing.T) {
	dir := t.TempDir()
	file, header := multipartRequest(t, "empty.mp4", nil)

	_, err := SaveUpload(file, header, dir, 1024)
	if !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
}

func TestDownload(t *testing.T) {
	payload := []byte("downloaded video data")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer server.Close()

	dir := t.TempDir()
	res, err := Download(context.Background(), server.Client(), server.URL+"/clips/session.mp4", dir, 1<<20)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if res.Size != int64(len(payload)) {
		t.Fatalf("size = %d", res.Size)
	}
	if !strings.HasSuffix(res.Path, "-session.mp4") {
		t.Fatalf("path = %s", res.Path)
	}
}

func TestDownloadRejectsOversizeByHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte{0x42}, 4096))
	}))
	defer server.Close()

	_, err := Download(context.Background(), server.Client(), server.URL+"/big.mp4", t.TempDir(), 1024)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

func TestDownloadRejectsBadStatusAndScheme(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	if _, err := Download(context.Background(), server.Client(), server.URL+"/gone.mp4", t.TempDir(), 0); err == nil {
		t.Fatal("expected error for 404")
	}
	if _, err := Download(context.Background(), nil, "ftp://example.com/a.mp4", t.TempDir(), 0); err == nil {
		t.Fatal("expected error for ftp scheme")
	}
}

func TestUniqueNameFallbacks(t *testing.T) {
	if got := uniqueName(""); !strings.HasSuffix(got, "-input.mp4") {
		t.Errorf("empty name: %s", got)
	}
	if got := uniqueName("noext"); !strings.HasSuffix(got, "-noext.mp4") {
		t.Errorf("extensionless name: %s", got)
	}
	if got := uniqueName("My Clip (1).MP4"); !strings.HasSuffix(got, "-my_clip__1.mp4") {
		t.Errorf("unsanitized name survived: %s", got)
	}
	if got := uniqueName("clip.m p4"); !strings.HasSuffix(got, "-clip.mp4") {
		t.Errorf("malformed extension kept: %s", got)
	}
}
