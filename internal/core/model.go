package core

import (
	"context"
	"encoding/json"
	"errors"

	"medilens.app/analysis-server/internal/prompt"
)

// ErrEncoding indicates the uploaded file could not be encoded for the model
// or for storage. It is the one failure class that rejects the whole analyze
// operation; without an encoded file there is nothing to analyze or store.
var ErrEncoding = errors.New("file encoding failed")

// ErrModelInvocation indicates a transport failure or a schema-invalid reply
// from the model service. The pipeline never surfaces it; it is absorbed
// into the degraded fallback record.
var ErrModelInvocation = errors.New("model invocation failed")

// ImagePayload is the raw upload as submitted to the model service.
type ImagePayload struct {
	MIMEType string
	Data     []byte
}

// ModelClient is the boundary to the hosted generative model: one logical
// operation, generate structured content from instruction + schema + image.
type ModelClient interface {
	GenerateStructured(ctx context.Context, instruction string, schema *prompt.Schema, image ImagePayload) (json.RawMessage, error)
}

// ArtifactStore offloads generated overlay images to object storage.
// Implementations return a retrievable URL for the stored object.
type ArtifactStore interface {
	UploadPNG(ctx context.Context, key string, data []byte) (string, error)
}
