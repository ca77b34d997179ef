package hostapi

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// maxReadSize caps files read through readTextFile.
const maxReadSize = 64 * 1024 * 1024

// abs resolves p against the run's working directory.
func (b *Backend) abs(p string) string {
	if !filepath.IsAbs(p) {
		p = filepath.Join(b.cwd, p)
	}
	return filepath.Clean(p)
}

// ReadTextFile reads a file covered by a read permission.
func (b *Backend) ReadTextFile(ctx context.Context, path string) (string, error) {
	target := b.abs(path)
	if err := b.checker.CheckRead(target); err != nil {
		slog.WarnContext(ctx, "read denied", "path", target, "error", err)
		return "", err
	}

	f, err := os.Open(target) //nolint:gosec // G304: checked against the read permissions above
	if err != nil {
		return "", err
	}
	defer func() {
		_ = f.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(f, maxReadSize+1))
	if err != nil {
		return "", err
	}
	if len(data) > maxReadSize {
		return "", fmt.Errorf("%s: file larger than %d bytes", path, maxReadSize)
	}
	return string(data), nil
}

// WriteTextFile creates or truncates a file covered by a write permission.
func (b *Backend) WriteTextFile(ctx context.Context, path, data string) error {
	target := b.abs(path)
	if err := b.checker.CheckWrite(target); err != nil {
		slog.WarnContext(ctx, "write denied", "path", target, "error", err)
		return err
	}
	return os.WriteFile(target, []byte(data), 0o644) //nolint:gosec // G306: extension output files are user files
}

// EnvGet reads an environment variable covered by an env permission.
func (b *Backend) EnvGet(name string) (string, bool, error) {
	if err := b.checker.CheckEnv(name); err != nil {
		return "", false, err
	}
	v, ok := b.lookupEnv(name)
	return v, ok, nil
}
