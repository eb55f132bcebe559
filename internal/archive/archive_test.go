package archive

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/tranthanhvu011/DTWH/internal/config"
)

var day = time.Date(2026, time.October, 19, 9, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return day }

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func TestArchiveName(t *testing.T) {
	if got := ArchiveName("/data/products.csv", day); got != "products_20261019.csv" {
		t.Fatalf("ArchiveName = %q", got)
	}
}

func TestLocalArchiverMovesFile(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "images.csv", "product_name,image_url\n")
	history := filepath.Join(dir, "history")

	dest, err := NewLocalArchiver(history, fixedNow).Archive(context.Background(), src)
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if dest != filepath.Join(history, "images_20261019.csv") {
		t.Fatalf("dest = %q", dest)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatalf("source should be gone, stat err = %v", err)
	}
	body, err := os.ReadFile(dest)
	if err != nil || string(body) != "product_name,image_url\n" {
		t.Fatalf("archived body = %q, %v", body, err)
	}
}

type fakeS3 struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = params
	f.body, _ = io.ReadAll(params.Body)
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestS3ArchiverUploadsAndRemoves(t *testing.T) {
	src := writeFile(t, t.TempDir(), "specifications.csv", "a,b\n")
	client := &fakeS3{}

	loc, err := newS3Archiver(client, "etl-archive", "history", fixedNow).Archive(context.Background(), src)
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if loc != "s3://etl-archive/history/specifications_20261019.csv" {
		t.Fatalf("location = %q", loc)
	}
	if *client.input.Bucket != "etl-archive" || string(client.body) != "a,b\n" {
		t.Fatalf("upload = %+v body=%q", client.input, client.body)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatalf("local file should be removed")
	}
}

func TestS3ArchiverKeepsFileOnUploadError(t *testing.T) {
	src := writeFile(t, t.TempDir(), "products.csv", "x\n")
	boom := errors.New("access denied")

	_, err := newS3Archiver(&fakeS3{err: boom}, "b", "", fixedNow).Archive(context.Background(), src)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if _, err := os.Stat(src); err != nil {
		t.Fatalf("file must stay when the upload fails: %v", err)
	}
}

func TestNewRejectsUnknownType(t *testing.T) {
	if _, err := New(context.Background(), config.ArchiveConfig{Type: "ftp"}, fixedNow); err == nil {
		t.Fatalf("expected error")
	}
}
