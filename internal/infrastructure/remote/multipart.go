package remote

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/textproto"

	"github.com/google/uuid"
	"github.com/mrops-br/offline-catalog/internal/domain"
)

const (
	imageFieldName   = "files[]"
	imageFileName    = "image.jpg"
	imageContentType = "image/jpeg"
)

// encodeProductForm builds the multipart body for a product submission and
// returns it with its Content-Type header value. Text parts come first in a
// fixed order, then the optional image part.
func encodeProductForm(write domain.PendingWrite) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	if err := mw.SetBoundary(uuid.NewString()); err != nil {
		return nil, "", err
	}

	fields := []struct{ key, value string }{
		{"product_name", write.Name},
		{"product_type", write.Category},
		{"price", write.Price.String()},
		{"tax", write.TaxRate.String()},
	}
	for _, f := range fields {
		if err := mw.WriteField(f.key, f.value); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", f.key, err)
		}
	}

	if len(write.Image) > 0 {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, imageFieldName, imageFileName))
		header.Set("Content-Type", imageContentType)
		part, err := mw.CreatePart(header)
		if err != nil {
			return nil, "", fmt.Errorf("create image part: %w", err)
		}
		if _, err := part.Write(write.Image); err != nil {
			return nil, "", fmt.Errorf("write image part: %w", err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return body, mw.FormDataContentType(), nil
}
