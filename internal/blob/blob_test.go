package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// minimalPDF builds a one-page document with a correct xref table.
func minimalPDF() []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << >> >>",
	}
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestInspectPDF(t *testing.T) {
	data := minimalPDF()
	info, err := Inspect(data, 0)
	require.NoError(t, err)
	assert.Equal(t, ContentTypePDF, info.ContentType)
	assert.Equal(t, 1, info.Pages)
	assert.Equal(t, int64(len(data)), info.Size)
	assert.True(t, strings.HasPrefix(info.Digest, "sha256:"))
}

func TestInspectImages(t *testing.T) {
	info, err := Inspect(pngHeader, 0)
	require.NoError(t, err)
	assert.Equal(t, ContentTypePNG, info.ContentType)

	info, err = Inspect([]byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00"), 0)
	require.NoError(t, err)
	assert.Equal(t, ContentTypeJPEG, info.ContentType)
}

func TestInspectRejects(t *testing.T) {
	_, err := Inspect(nil, 0)
	assert.ErrorIs(t, err, ErrEmptyFile)

	_, err = Inspect([]byte("hello, plain text"), 0)
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = Inspect(pngHeader, 4)
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = Inspect([]byte("%PDF-1.4\nthis is not really a pdf"), 0)
	assert.ErrorIs(t, err, ErrUnreadablePDF)
}

func TestKey(t *testing.T) {
	digest := "sha256:0123456789abcdef0123456789abcdef"
	assert.Equal(t, "doc-1/0123456789abcdef.pdf", Key("doc-1", digest, "Acme COI.PDF"))
	assert.Equal(t, "doc-1/0123456789abcdef", Key("doc-1", digest, "noext"))
}

func TestLocalPutOpen(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	uri, err := store.Put(ctx, "doc-1/abc.pdf", ContentTypePDF, []byte("first"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(uri, "file://"))

	again, err := store.Put(ctx, "doc-1/abc.pdf", ContentTypePDF, []byte("second"))
	require.NoError(t, err)
	assert.Equal(t, uri, again)

	rc, err := store.Open(ctx, "doc-1/abc.pdf")
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "first", string(body))

	_, err = store.Open(ctx, "doc-1/missing.pdf")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = store.Put(ctx, "../escape", ContentTypePDF, []byte("x"))
	assert.Error(t, err)
}
