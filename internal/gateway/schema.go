package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/wesleyorama2/horde/pkg/jsonschema"
)

// RequestSchema is the JSON Schema of a mediation request on the wire.
const RequestSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["api_name", "method", "path"],
  "additionalProperties": false,
  "properties": {
    "api_name": {"type": "string", "minLength": 1},
    "method": {"enum": ["GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS"]},
    "path": {"type": "string", "pattern": "^/"},
    "headers": {"type": "object", "additionalProperties": {"type": "string"}},
    "query": {"type": "object", "additionalProperties": {"type": "string"}},
    "data": {},
    "trace_id": {"type": "string"}
  }
}`

var requestSchema = jsonschema.MustCompile("mediation-request.json", RequestSchema)

// DecodeRequest validates a raw mediation request against RequestSchema and
// decodes it. Any failure is a Validation error.
func DecodeRequest(data []byte) (*ActionRequest, *Error) {
	if errs := requestSchema.ValidateBytes(data); len(errs) > 0 {
		return nil, newError(KindValidation, "request does not match schema: %v", errs)
	}

	var req ActionRequest
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		return nil, newError(KindValidation, "%v", fmt.Errorf("decode request: %w", err))
	}
	return &req, nil
}
