package http

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	checkout "github.com/payelement/checkout/go"
)

// RemoteError is a non-2xx answer whose body is not processor-shaped
type RemoteError struct {
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("store returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("store returned status %d: %s", e.StatusCode, e.Body)
}

// processorErrorSchema describes the error object the processor and the
// store endpoints wrapping it return.
const processorErrorSchema = `{
	"type": "object",
	"required": ["message"],
	"properties": {
		"message": {"type": "string", "minLength": 1},
		"charge":  {"type": "string"},
		"code":    {"type": "string"},
		"type":    {"type": "string"}
	}
}`

var processorErrorLoader = gojsonschema.NewStringLoader(processorErrorSchema)

// maxErrorBody bounds the body kept on a RemoteError
const maxErrorBody = 512

// decodeError maps a non-2xx body to a *checkout.ProcessorError when it is
// processor-shaped, either bare or wrapped as {"error": {...}}, and to a
// *RemoteError otherwise.
func decodeError(status int, body []byte) error {
	if pe, ok := matchProcessorError(body); ok {
		return pe
	}

	var wrapped struct {
		Error json.RawMessage `json:"error"`
	}
	if json.Unmarshal(body, &wrapped) == nil && len(wrapped.Error) > 0 {
		if pe, ok := matchProcessorError(wrapped.Error); ok {
			return pe
		}
	}

	text := string(body)
	if len(text) > maxErrorBody {
		text = text[:maxErrorBody]
	}
	return &RemoteError{StatusCode: status, Body: text}
}

func matchProcessorError(data []byte) (*checkout.ProcessorError, bool) {
	if len(data) == 0 {
		return nil, false
	}
	result, err := gojsonschema.Validate(processorErrorLoader, gojsonschema.NewBytesLoader(data))
	if err != nil || !result.Valid() {
		return nil, false
	}

	var pe checkout.ProcessorError
	if err := json.Unmarshal(data, &pe); err != nil {
		return nil, false
	}
	return &pe, true
}
