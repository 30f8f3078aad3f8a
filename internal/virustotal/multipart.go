package virustotal

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
)

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// newMultipartFile returns a body that streams the file at path as the "file"
// form field. The body reopens the file on every call so the request can be retried.
func newMultipartFile(path string, size int64) (retryablehttp.ReaderFunc, string, int64, error) {
	buffy := &bytes.Buffer{}
	writer := multipart.NewWriter(buffy)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(filepath.Base(path))))
	header.Set("Content-Type", "application/octet-stream")

	// The part's data is streamed from disk later, only the framing is buffered.
	if _, err := writer.CreatePart(header); err != nil {
		return nil, "", 0, err
	}
	headerSize := buffy.Len()

	if err := writer.Close(); err != nil {
		return nil, "", 0, err
	}

	framing := buffy.Bytes()
	length := int64(len(framing)) + size

	body := func() (io.Reader, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		return &fileReader{
			Reader: io.MultiReader(
				bytes.NewReader(framing[:headerSize]),
				f,
				bytes.NewReader(framing[headerSize:]),
			),
			file: f,
		}, nil
	}

	return body, writer.FormDataContentType(), length, nil
}

// fileReader closes the underlying file once the request body is closed.
type fileReader struct {
	io.Reader
	file *os.File
}

func (r *fileReader) Close() error {
	return r.file.Close()
}
