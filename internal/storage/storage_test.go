package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/ledgerline/banking-support/pkg/util/errorutil"
)

type failingStore struct{}

func (failingStore) Put(context.Context, string, string, io.Reader) error {
	return errors.New("bucket quota exceeded")
}

func (failingStore) PublicURL(bucket, key string) string { return "" }

func fixedClock() time.Time {
	return time.UnixMilli(1700000000123)
}

func TestUploaderNamesAndStoresObject(t *testing.T) {
	dir := t.TempDir()
	store := NewDiskStore(dir, "http://files.local/storage/v1/object/public/")
	up := NewUploader(store, 1024, zap.NewNop(), nil).WithClock(fixedClock)

	att, err := up.Upload(context.Background(), ChatBucket, "user-1", "", File{
		Name: "receipt photo.png",
		Body: strings.NewReader("png-bytes"),
		Size: 9,
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if att.Key != "user-1/1700000000123_receipt photo.png" {
		t.Fatalf("key: got %q", att.Key)
	}
	wantURL := "http://files.local/storage/v1/object/public/chat-uploads/user-1/1700000000123_receipt%20photo.png"
	if att.URL != wantURL {
		t.Fatalf("url: got %q, want %q", att.URL, wantURL)
	}

	full, err := store.Path(ChatBucket, att.Key)
	if err != nil {
		t.Fatalf("Path: %v", err)
	}
	data, err := os.ReadFile(full)
	if err != nil || string(data) != "png-bytes" {
		t.Fatalf("stored content: %q, %v", data, err)
	}
}

func TestUploaderPrefixAndPathStripping(t *testing.T) {
	up := NewUploader(NewDiskStore(t.TempDir(), "http://x"), 0, zap.NewNop(), nil).WithClock(fixedClock)
	att, err := up.Upload(context.Background(), "loan-documents", "u9", "loan_", File{
		Name: `C:\Users\me\..\payslip.pdf`,
		Body: bytes.NewReader([]byte("pdf")),
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if att.Key != "u9/loan_1700000000123_payslip.pdf" {
		t.Fatalf("key: got %q", att.Key)
	}
}

func TestUploaderFailureIsUploadFailed(t *testing.T) {
	up := NewUploader(failingStore{}, 0, zap.NewNop(), nil)
	_, err := up.Upload(context.Background(), ChatBucket, "u1", "", File{Name: "a.png", Body: strings.NewReader("x")})
	if !apperrors.HasCode(err, apperrors.CodeUploadFailed) {
		t.Fatalf("expected UPLOAD_FAILED, got %v", err)
	}
}

func TestUploaderRejectsOversizedBody(t *testing.T) {
	dir := t.TempDir()
	up := NewUploader(NewDiskStore(dir, "http://x"), 4, zap.NewNop(), nil)

	_, err := up.Upload(context.Background(), ChatBucket, "u1", "", File{Name: "a.png", Body: strings.NewReader("123456"), Size: 6})
	if !apperrors.HasCode(err, apperrors.CodeValidationFailed) {
		t.Fatalf("declared size: expected VALIDATION_FAILED, got %v", err)
	}

	_, err = up.Upload(context.Background(), ChatBucket, "u1", "", File{Name: "b.png", Body: strings.NewReader("123456")})
	if !apperrors.HasCode(err, apperrors.CodeUploadFailed) {
		t.Fatalf("undeclared size: expected UPLOAD_FAILED, got %v", err)
	}
	entries, _ := os.ReadDir(dir + "/" + ChatBucket + "/u1")
	for _, e := range entries {
		t.Fatalf("partial object left behind: %s", e.Name())
	}
}

func TestUploaderValidation(t *testing.T) {
	up := NewUploader(NewDiskStore(t.TempDir(), "http://x"), 0, zap.NewNop(), nil)
	cases := []struct {
		name  string
		owner string
		file  File
	}{
		{"no owner", "", File{Name: "a.png", Body: strings.NewReader("x")}},
		{"no name", "u1", File{Name: "  ", Body: strings.NewReader("x")}},
		{"no body", "u1", File{Name: "a.png"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := up.Upload(context.Background(), ChatBucket, tc.owner, "", tc.file)
			if !apperrors.HasCode(err, apperrors.CodeValidationFailed) {
				t.Fatalf("expected VALIDATION_FAILED, got %v", err)
			}
		})
	}
}

func TestDiskStorePathRejectsTraversal(t *testing.T) {
	store := NewDiskStore(t.TempDir(), "http://x")
	for _, key := range []string{"../etc/passwd", "u1/../../x", "/abs", "u1//x", ""} {
		if _, err := store.Path(ChatBucket, key); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("key %q: expected ErrInvalidKey, got %v", key, err)
		}
	}
	if _, err := store.Path("..", "u1/a.png"); !errors.Is(err, ErrInvalidKey) {
		t.Error("bucket traversal should be rejected")
	}
}
