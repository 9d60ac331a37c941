package core

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// EncodeDataURL builds the data-URL form of an upload, kept on the record
// for re-display. Only image payloads are accepted; an empty body or a
// non-image MIME type is an encoding failure.
func EncodeDataURL(mimeType string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty file body", ErrEncoding)
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return "", fmt.Errorf("%w: unsupported content type %q", ErrEncoding, mimeType)
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// DecodeDataURL strips the data-URL prefix back to the raw payload, the form
// the model service consumes.
func DecodeDataURL(dataURL string) (ImagePayload, error) {
	rest, ok := strings.CutPrefix(dataURL, "data:")
	if !ok {
		return ImagePayload{}, fmt.Errorf("%w: missing data: prefix", ErrEncoding)
	}
	meta, body, ok := strings.Cut(rest, ",")
	if !ok {
		return ImagePayload{}, fmt.Errorf("%w: malformed data url", ErrEncoding)
	}
	mimeType, _ := strings.CutSuffix(meta, ";base64")
	data, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return ImagePayload{}, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return ImagePayload{MIMEType: mimeType, Data: data}, nil
}
