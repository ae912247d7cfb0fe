package validation

import (
	"bufio"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"
)

const sniffLen = 512

// genericTypes are client-sent content types that say nothing about the payload.
var genericTypes = map[string]bool{
	"":                         true,
	"application/octet-stream": true,
	"binary/octet-stream":      true,
}

// ListTypes are the MIME top-level types a listing can filter on.
var ListTypes = map[string]bool{
	"image":       true,
	"video":       true,
	"audio":       true,
	"application": true,
	"text":        true,
}

// DetectContentType returns the MIME type to store for an upload together with a
// reader that still yields the full stream. The client's type wins unless it is
// missing or generic; then the extension and finally the first 512 bytes decide.
func DetectContentType(filename, clientType string, r io.Reader) (string, io.Reader, error) {
	clientType = normalizeType(clientType)
	if !genericTypes[clientType] {
		return clientType, r, nil
	}

	if byExt := normalizeType(mime.TypeByExtension(strings.ToLower(path.Ext(filename)))); byExt != "" {
		return byExt, r, nil
	}

	br := bufio.NewReaderSize(r, sniffLen)
	head, err := br.Peek(sniffLen)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return "", nil, err
	}

	return normalizeType(http.DetectContentType(head)), br, nil
}

// normalizeType drops parameters such as charset.
func normalizeType(t string) string {
	mediaType, _, err := mime.ParseMediaType(t)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(t))
	}
	return mediaType
}
