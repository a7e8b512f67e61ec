// Package download saves a resolved stream to disk. Progressive renditions
// are a single MP4, so the bytes are written as-is; no remuxing is needed.
// Output paths are validated against directory traversal and the file only
// appears under its final name once complete.
package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"bilirelay/internal/httputil"
	"bilirelay/internal/media"
)

// Download fetches res.MediaURL into dir and returns the written path.
func Download(ctx context.Context, client *http.Client, res *media.Resolution, dir string) (string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving output directory: %w", err)
	}
	if err := os.MkdirAll(absDir, 0755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}

	name := res.Title
	if name == "" {
		name = res.BVID.String()
	}
	outputPath, err := httputil.SafeDownloadPath(absDir, fmt.Sprintf("%s.mp4", name))
	if err != nil {
		return "", fmt.Errorf("invalid output path: %w", err)
	}

	if _, err := httputil.ValidateMediaURL(res.MediaURL); err != nil {
		return "", fmt.Errorf("invalid media URL: %w", err)
	}

	req, err := httputil.NewRequest(ctx, http.MethodGet, res.MediaURL)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept-Encoding", "identity")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d fetching media", resp.StatusCode)
	}

	tmp, err := os.CreateTemp(absDir, ".bilirelay-*.part")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	n, err := io.Copy(tmp, resp.Body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		// Clean up partial download on failure
		os.Remove(tmpPath)
		return "", fmt.Errorf("writing media: %w", err)
	}

	if err := os.Rename(tmpPath, outputPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("finalizing download: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"path":  outputPath,
		"bytes": n,
	}).Info("download complete")

	return outputPath, nil
}
