package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tranthanhvu011/DTWH/internal/config"
)

// Archiver moves a processed input file out of the way and returns where it
// went.
type Archiver interface {
	Archive(ctx context.Context, path string) (string, error)
}

// New builds the archiver selected by cfg.Type
func New(ctx context.Context, cfg config.ArchiveConfig, now func() time.Time) (Archiver, error) {
	switch cfg.Type {
	case "", "local":
		return NewLocalArchiver(cfg.HistoryDir, now), nil
	case "s3":
		return NewS3Archiver(ctx, cfg.S3, now)
	default:
		return nil, fmt.Errorf("unsupported archive type %q", cfg.Type)
	}
}

// ArchiveName appends the date to the file name: products.csv becomes
// products_20261019.csv.
func ArchiveName(path string, now time.Time) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	return fmt.Sprintf("%s_%s%s", strings.TrimSuffix(base, ext), now.Format("20060102"), ext)
}

// LocalArchiver moves files into a history directory
type LocalArchiver struct {
	dir string
	now func() time.Time
}

func NewLocalArchiver(dir string, now func() time.Time) *LocalArchiver {
	if now == nil {
		now = time.Now
	}
	return &LocalArchiver{dir: dir, now: now}
}

func (a *LocalArchiver) Archive(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return "", fmt.Errorf("create history dir: %w", err)
	}
	dest := filepath.Join(a.dir, ArchiveName(path, a.now()))
	if err := os.Rename(path, dest); err != nil {
		// rename fails across file systems
		if cerr := copyFile(path, dest); cerr != nil {
			return "", fmt.Errorf("archive %s: %w", path, cerr)
		}
		if rerr := os.Remove(path); rerr != nil {
			return "", fmt.Errorf("remove archived %s: %w", path, rerr)
		}
	}
	return dest, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
