package fetch

import (
	"mime"
	"strings"
)

// MaxImageSize is the default ceiling for a single download, applied to
// both the declared Content-Length and the actual bytes received.
const MaxImageSize = 10 << 20 // 10MiB

// imageTypes maps admissible image media types to their canonical
// file extension.
var imageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/bmp":  ".bmp",
}

// Admit decides whether a response is worth downloading from its
// declared headers alone. contentLength < 0 means the server did not
// declare one, which passes the size check. Admit is pure; it inspects
// no bytes and has no side effects.
func Admit(contentType string, contentLength int64) error {
	return admit(mediaType(contentType), contentLength, MaxImageSize)
}

func admit(mediaType string, contentLength, maxSize int64) error {
	if _, ok := imageTypes[mediaType]; !ok {
		return failure(ErrInvalidContentType, "%q is not an allowed image type", mediaType)
	}

	if contentLength > maxSize {
		return failure(ErrFileTooLarge, "declared %d bytes, limit is %d", contentLength, maxSize)
	}

	return nil
}

// mediaType normalizes a Content-Type header value to its bare
// lowercase media type, dropping any parameters.
func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}

	return mt
}
