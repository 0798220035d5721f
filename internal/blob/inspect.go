package blob

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/davidahmann/coitrack/internal/crypto"
)

const (
	ContentTypePDF  = "application/pdf"
	ContentTypeJPEG = "image/jpeg"
	ContentTypePNG  = "image/png"
)

var (
	ErrEmptyFile       = errors.New("file is empty")
	ErrTooLarge        = errors.New("file exceeds upload limit")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrUnreadablePDF   = errors.New("pdf could not be read")
)

// Info describes an uploaded file after inspection.
type Info struct {
	ContentType string
	Size        int64
	Pages       int
	Digest      string
}

// Inspect sniffs the file type, rejecting anything other than PDF, JPEG or
// PNG, and counts pages for PDFs. maxBytes <= 0 disables the size check.
func Inspect(data []byte, maxBytes int64) (Info, error) {
	if len(data) == 0 {
		return Info{}, ErrEmptyFile
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return Info{}, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(data))
	}

	contentType := http.DetectContentType(data)
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}

	info := Info{ContentType: contentType, Size: int64(len(data)), Pages: 1, Digest: crypto.Digest(data)}
	switch contentType {
	case ContentTypeJPEG, ContentTypePNG:
		return info, nil
	case ContentTypePDF:
	default:
		return Info{}, fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	pages, err := api.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrUnreadablePDF, err)
	}
	if pages == 0 {
		return Info{}, fmt.Errorf("%w: no pages", ErrUnreadablePDF)
	}
	info.Pages = pages
	return info, nil
}
