package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// maxFieldSize bounds the plain form fields that accompany a statement upload.
const maxFieldSize = 1 << 10

type statementUpload struct {
	doc        []byte
	currency   string
	dateFormat string
}

// readStatementUpload streams a multipart body without fiber's form parsing,
// which keeps its own copy of every file part. The only copies of the
// statement left are the request body and the returned doc, and the caller
// clears both.
func readStatementUpload(body []byte, boundary string) (statementUpload, error) {
	var up statementUpload
	if boundary == "" {
		return up, fiber.NewError(fiber.StatusBadRequest, "expected a multipart/form-data body")
	}

	mr := multipart.NewReader(bytes.NewReader(body), boundary)
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return up, fiber.NewError(fiber.StatusBadRequest, "malformed multipart body")
		}

		switch part.FormName() {
		case "file":
			up.doc, err = io.ReadAll(io.LimitReader(part, MaxUploadSize))
		case "currency":
			up.currency, err = readField(part)
		case "dateFormat":
			up.dateFormat, err = readField(part)
		}
		part.Close()
		if err != nil {
			return up, fmt.Errorf("reading multipart field %q: %w", part.FormName(), err)
		}
	}

	if up.doc == nil {
		return up, fiber.NewError(fiber.StatusBadRequest, "missing multipart field \"file\"")
	}
	return up, nil
}

func readField(r io.Reader) (string, error) {
	b, err := io.ReadAll(io.LimitReader(r, maxFieldSize))
	return strings.TrimSpace(string(b)), err
}
