// Package intake lands input videos in the work directory, either from a
// multipart upload or by downloading a caller-supplied URL. Inputs are
// streamed to disk with a hard size cap so an oversized body never buffers
// in memory or fills the work volume.
package intake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"subclean/internal/textutil"
)

// ErrTooLarge reports an input over the configured size cap.
var ErrTooLarge = errors.New("input exceeds size limit")

// ErrEmptyInput reports a zero-byte upload or download.
var ErrEmptyInput = errors.New("input is empty")

// Result describes a landed input file.
type Result struct {
	Path string
	Size int64
}

// SaveUpload streams one multipart file into destDir under a unique name.
func SaveUpload(file multipart.File, header *multipart.FileHeader, destDir string, maxBytes int64) (Result, error) {
	if header == nil {
		return Result{}, errors.New("intake: missing file header")
	}
	name := uniqueName(header.Filename)
	return land(file, filepath.Join(destDir, name), maxBytes)
}

// Download fetches rawURL into destDir under a unique name. Only http and
// https schemes are accepted.
func Download(ctx context.Context, client *http.Client, rawURL, destDir string, maxBytes int64) (Result, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return Result{}, fmt.Errorf("intake: parse url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return Result{}, fmt.Errorf("intake: unsupported url scheme %q", parsed.Scheme)
	}
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return Result{}, fmt.Errorf("intake: build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("intake: download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("intake: download returned %d", resp.StatusCode)
	}
	if resp.ContentLength > 0 && maxBytes > 0 && resp.ContentLength > maxBytes {
		return Result{}, fmt.Errorf("%w: %d bytes", ErrTooLarge, resp.ContentLength)
	}

	name := uniqueName(filepath.Base(parsed.Path))
	return land(resp.Body, filepath.Join(destDir, name), maxBytes)
}

// land streams src to destPath, enforcing the cap and rejecting empty input.
// The partial file is removed on any failure.
func land(src io.Reader, destPath string, maxBytes int64) (Result, error) {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return Result{}, fmt.Errorf("intake: ensure work dir: %w", err)
	}
	out, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return Result{}, fmt.Errorf("intake: create input file: %w", err)
	}

	reader := src
	if maxBytes > 0 {
		reader = io.LimitReader(src, maxBytes+1)
	}
	written, err := io.Copy(out, reader)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(destPath)
		return Result{}, fmt.Errorf("intake: write input: %w", err)
	}
	if maxBytes > 0 && written > maxBytes {
		_ = os.Remove(destPath)
		return Result{}, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, maxBytes)
	}
	if written == 0 {
		_ = os.Remove(destPath)
		return Result{}, ErrEmptyInput
	}
	return Result{Path: destPath, Size: written}, nil
}

// uniqueName prefixes a sanitized form of the original base name with a UUID,
// so concurrent tasks never collide and caller-supplied names carry no shell
// or path metacharacters into the work directory.
func uniqueName(original string) string {
	base := filepath.Base(strings.TrimSpace(original))
	if base == "" || base == "." || base == "/" {
		base = "input.mp4"
	}
	ext := strings.ToLower(filepath.Ext(base))
	stem := textutil.SanitizeToken(strings.TrimSuffix(base, ext))
	if ext == "" || textutil.SanitizeToken(ext[1:]) != ext[1:] {
		ext = ".mp4"
	}
	return uuid.NewString() + "-" + stem + ext
}
