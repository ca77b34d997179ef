package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// ErrFileConflict is wrapped when a copy destination already exists.
var ErrFileConflict = errors.New("already exists")

// CopyTree copies the regular files and directories under src into dst,
// which must already exist. Directories are created owner-only and files keep
// only their owner permission bits. Symbolic links and special files are
// skipped with a warning. An existing destination file aborts the copy.
func CopyTree(ctx context.Context, src, dst string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	return filepath.WalkDir(src, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		dest := filepath.Join(dst, rel)

		switch {
		case d.Type()&fs.ModeSymlink != 0:
			logger.WarnContext(ctx, "symbolic link in package, skipping", "path", path)
			return nil

		case d.IsDir():
			if path == dst {
				// dst lives inside src; never copy the copy.
				return filepath.SkipDir
			}
			if err := os.Mkdir(dest, 0o700); err != nil && !errors.Is(err, fs.ErrExist) {
				return fmt.Errorf("failed to create %s: %w", dest, err)
			}
			return nil

		case d.Type().IsRegular():
			info, err := d.Info()
			if err != nil {
				return err
			}
			return copyFile(path, dest, info.Mode().Perm()&0o700|0o600)

		default:
			logger.WarnContext(ctx, "special file in package, skipping", "path", path, "mode", d.Type().String())
			return nil
		}
	})
}

func copyFile(src, dest string, perm fs.FileMode) error {
	in, err := os.Open(src) //nolint:gosec // G304: src comes from walking a validated package tree
	if err != nil {
		return err
	}
	defer func() {
		_ = in.Close()
	}()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm) //nolint:gosec // G304: dest is inside the staging directory
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%s: %w: %w", dest, ErrFileConflict, err)
		}
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return out.Close()
}
