package onnxwake

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/chriscow/voice-agent-go/pkg/version"
)

// DefaultModelDir is where downloaded keyword models are stored.
func DefaultModelDir() string {
	if dir := os.Getenv("VA_MODEL_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "voice-agent", "models")
	}
	return filepath.Join(home, ".cache", "voice-agent", "models")
}

// Downloader fetches keyword models into a directory.
type Downloader struct {
	dir    string
	client *http.Client
	logger *slog.Logger
}

// NewDownloader creates a downloader writing into dir.
func NewDownloader(dir string, logger *slog.Logger) *Downloader {
	if dir == "" {
		dir = DefaultModelDir()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Downloader{dir: dir, client: &http.Client{}, logger: logger.With(slog.String("component", "downloader"))}
}

// Fetch downloads rawURL unless a valid copy is already present and returns
// the local path. An empty sha256 skips verification.
func (d *Downloader) Fetch(ctx context.Context, rawURL, sha string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid model URL: %w", err)
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" {
		return "", fmt.Errorf("model URL has no file name: %s", rawURL)
	}
	if err := os.MkdirAll(d.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create model directory: %w", err)
	}
	dest := filepath.Join(d.dir, name)

	if d.isValidFile(dest, sha) {
		d.logger.Info("Model already exists and is valid", slog.String("path", dest))
		return dest, nil
	}

	d.logger.Info("Downloading model", slog.String("url", rawURL))
	part := dest + ".part"
	if err := d.downloadFile(ctx, rawURL, part); err != nil {
		os.Remove(part)
		return "", fmt.Errorf("failed to download %s: %w", name, err)
	}
	if sha != "" && !d.verifyFileHash(part, sha) {
		os.Remove(part)
		return "", fmt.Errorf("checksum mismatch for %s", name)
	}
	if err := os.Rename(part, dest); err != nil {
		return "", fmt.Errorf("failed to move %s into place: %w", name, err)
	}

	d.logger.Info("Downloaded model", slog.String("path", dest))
	return dest, nil
}

func (d *Downloader) downloadFile(ctx context.Context, rawURL, destination string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", version.UserAgent())
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	file, err := os.Create(destination)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := io.Copy(file, resp.Body); err != nil {
		file.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	return file.Close()
}

func (d *Downloader) isValidFile(filePath, sha string) bool {
	info, err := os.Stat(filePath)
	if err != nil || info.Size() == 0 {
		return false
	}
	if sha == "" {
		return true
	}
	return d.verifyFileHash(filePath, sha)
}

func (d *Downloader) verifyFileHash(filePath, expected string) bool {
	file, err := os.Open(filePath)
	if err != nil {
		return false
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return false
	}
	return hex.EncodeToString(hasher.Sum(nil)) == strings.ToLower(expected)
}
