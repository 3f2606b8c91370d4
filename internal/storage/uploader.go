package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ledgerline/banking-support/internal/observability"
	apperrors "github.com/ledgerline/banking-support/pkg/util/errorutil"
)

// ChatBucket holds images shared in support conversations.
const ChatBucket = "chat-uploads"

// File is an attachment on its way to the store.
type File struct {
	Name        string
	Body        io.Reader
	Size        int64
	ContentType string
}

// Attachment is a stored object and its public URL.
type Attachment struct {
	Bucket string
	Key    string
	URL    string
}

// Uploader names objects {owner}/{prefix}{unix millis}_{filename} and writes them to the store.
type Uploader struct {
	store    ObjectStore
	maxBytes int64
	logger   *zap.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

// NewUploader constructs an Uploader. maxBytes <= 0 disables the size limit.
func NewUploader(store ObjectStore, maxBytes int64, logger *zap.Logger, metrics *observability.Metrics) *Uploader {
	return &Uploader{store: store, maxBytes: maxBytes, logger: logger, metrics: metrics, now: time.Now}
}

// WithClock overrides the timestamp used in object names.
func (u *Uploader) WithClock(now func() time.Time) *Uploader {
	u.now = now
	return u
}

// Upload stores file for ownerID. Any store failure is reported as UPLOAD_FAILED.
func (u *Uploader) Upload(ctx context.Context, bucket, ownerID, prefix string, file File) (Attachment, error) {
	name := sanitizeName(file.Name)
	if strings.TrimSpace(ownerID) == "" {
		return Attachment{}, apperrors.NewValidationError("owner required", map[string]any{"field": "owner_id"})
	}
	if name == "" || file.Body == nil {
		return Attachment{}, apperrors.NewValidationError("file required", map[string]any{"field": "file"})
	}
	if u.maxBytes > 0 && file.Size > u.maxBytes {
		return Attachment{}, apperrors.NewValidationError("file too large", map[string]any{
			"field":     "file",
			"max_bytes": u.maxBytes,
		})
	}

	key := fmt.Sprintf("%s/%s%d_%s", ownerID, prefix, u.now().UnixMilli(), name)
	body := file.Body
	if u.maxBytes > 0 {
		body = &limitedReader{r: body, remaining: u.maxBytes}
	}

	err := u.store.Put(ctx, bucket, key, body)
	u.metrics.UploadFinished(bucket, err)
	if err != nil {
		u.logger.Warn("upload failed",
			zap.String("bucket", bucket),
			zap.String("key", key),
			zap.Error(err),
		)
		return Attachment{}, apperrors.NewUploadFailed(err)
	}

	u.logger.Debug("object stored", zap.String("bucket", bucket), zap.String("key", key))
	return Attachment{Bucket: bucket, Key: key, URL: u.store.PublicURL(bucket, key)}, nil
}

func sanitizeName(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = path.Base(strings.TrimSpace(name))
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	return name
}

// limitedReader fails once more than remaining bytes are read, so an
// undeclared size cannot bypass the limit.
type limitedReader struct {
	r         io.Reader
	remaining int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		return n, fmt.Errorf("object exceeds size limit")
	}
	return n, err
}
