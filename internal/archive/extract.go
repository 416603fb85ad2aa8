package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"tush00nka/unzipbot/internal/model"
)

// SafeJoin resolves name under root and fails with ErrIllegalPath when the
// result would land outside root.
func SafeJoin(root, name string) (string, error) {
	cleaned := cleanName(name)
	if cleaned == "" || cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q", ErrIllegalPath, name)
	}

	target := filepath.Join(root, filepath.FromSlash(cleaned))
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrIllegalPath, name)
	}
	return target, nil
}

// Extract writes every entry of r below dir. It stops at the first failing
// entry or when ctx is done.
func Extract(ctx context.Context, r Reader, dir string) error {
	for _, entry := range r.List() {
		if err := ctx.Err(); err != nil {
			return err
		}

		target, err := SafeJoin(dir, entry.Path)
		if err != nil {
			return err
		}

		if entry.IsDir {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create directory %s: %w", entry.Path, err)
			}
			continue
		}

		if err := extractFile(r, entry, target); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(r Reader, entry model.ExtractedEntry, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", entry.Path, err)
	}

	src, err := r.Open(entry.Path)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", entry.Path, err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("extract %s: %w", entry.Path, err)
	}
	return dst.Close()
}
