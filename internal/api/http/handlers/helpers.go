package handlers

import (
	"mime/multipart"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/ledgerline/banking-support/internal/auth"
	"github.com/ledgerline/banking-support/internal/storage"
	apperrors "github.com/ledgerline/banking-support/pkg/util/errorutil"
)

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

// page reads ?page and ?page_size into limit and offset.
func page(c *fiber.Ctx) (limit, offset int) {
	p := parseInt(c.Query("page"), 1)
	size := parseInt(c.Query("page_size"), 20)
	if size > 100 {
		size = 100
	}
	return size, (p - 1) * size
}

func customerID(c *fiber.Ctx) (string, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return "", apperrors.NewAuthRequired("sign in required")
	}
	return principal.User.ID, nil
}

func staffID(c *fiber.Ctx) (string, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || !principal.IsStaff() {
		return "", apperrors.NewAuthRequired("staff sign in required")
	}
	return principal.Staff.ID, nil
}

// openUpload turns a multipart part into a storage.File. The caller closes it.
func openUpload(fh *multipart.FileHeader) (storage.File, multipart.File, error) {
	f, err := fh.Open()
	if err != nil {
		return storage.File{}, nil, apperrors.NewValidationError("unreadable file", map[string]any{"field": "file", "name": fh.Filename})
	}
	return storage.File{
		Name:        fh.Filename,
		Body:        f,
		Size:        fh.Size,
		ContentType: fh.Header.Get(fiber.HeaderContentType),
	}, f, nil
}
