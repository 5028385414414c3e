package provider

import (
	"errors"
	"strings"
)

var (
	ErrOutOfMemory           = errors.New("backend out of GPU memory")
	ErrEncoderNotInitialized = errors.New("backend encoder not initialized")
)

// BackendError is a failure the inference server reported inside an
// otherwise successful response body.
type BackendError struct {
	Identifier string
	Message    string
	Hint       string
	kind       error
}

func (e *BackendError) Error() string {
	return e.Message + " Hint: " + e.Hint
}

func (e *BackendError) Unwrap() error { return e.kind }

type knownBackendError struct {
	prefix  string
	message string
	hint    string
	kind    error
}

var knownBackendErrors = []knownBackendError{
	{
		prefix:  "[Inference error] CUDA out of memory",
		message: "The server has run out of GPU VRAM.",
		hint:    "Ask someone from the Core ML team to restart the service. We are sorry about the inconvenience.",
		kind:    ErrOutOfMemory,
	},
	{
		prefix:  `"[Server Error] Encoder is not initialized."`,
		message: "The encoder model is not initialized on this server.",
		hint:    "Check that the IP and/or PORT for the model are correct. ",
		kind:    ErrEncoderNotInitialized,
	},
}

// CheckResponse returns a *BackendError when text starts with a known
// backend error identifier. It runs on every raw response before the
// text is used as content.
func CheckResponse(text string) error {
	trimmed := strings.TrimLeft(text, " \t\r\n")
	for _, known := range knownBackendErrors {
		if strings.HasPrefix(trimmed, known.prefix) {
			return &BackendError{
				Identifier: known.prefix,
				Message:    known.message,
				Hint:       known.hint,
				kind:       known.kind,
			}
		}
	}
	return nil
}
