package handlers

import (
	"errors"
	"net/url"
	"os"

	"github.com/gofiber/fiber/v2"

	"github.com/ledgerline/banking-support/internal/storage"
	apperrors "github.com/ledgerline/banking-support/pkg/util/errorutil"
)

// StorageHandler serves public objects from the disk store.
type StorageHandler struct {
	store *storage.DiskStore
}

// NewStorageHandler constructs handler.
func NewStorageHandler(store *storage.DiskStore) *StorageHandler {
	return &StorageHandler{store: store}
}

// Object GET /storage/v1/object/public/:bucket/*.
func (h *StorageHandler) Object(c *fiber.Ctx) error {
	bucket, err := url.PathUnescape(c.Params("bucket"))
	if err != nil {
		return apperrors.NewNotFound("object", nil)
	}
	key, err := url.PathUnescape(c.Params("*"))
	if err != nil {
		return apperrors.NewNotFound("object", nil)
	}

	full, err := h.store.Path(bucket, key)
	if err != nil {
		return apperrors.NewNotFound("object", map[string]any{"bucket": bucket})
	}
	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return apperrors.NewInternalError(err)
		}
		return apperrors.NewNotFound("object", map[string]any{"bucket": bucket, "key": key})
	}
	c.Set(fiber.HeaderCacheControl, "public, max-age=3600")
	return c.SendFile(full)
}
