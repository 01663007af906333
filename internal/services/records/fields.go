package records

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/asad/mediabridge/internal/apperr"
)

// Record-store property names.
const (
	PropID        = "ID"
	PropUsername  = "Username"
	PropCaption   = "Caption"
	PropStatus    = "Status"
	PropOutputURL = "Output URL"
	PropEndpoint  = "Endpoint"
)

// defaultEndpoint is reported when a record carries no endpoint value.
const defaultEndpoint = "master"

// Fields is the body of a create or update. A nil field is absent; the
// json value never reaches the record store.
type Fields struct {
	Username  *string         `json:"username"`
	Caption   *string         `json:"caption"`
	Status    *string         `json:"status"`
	OutputURL *string         `json:"output_url"`
	JSON      json.RawMessage `json:"json"`
}

// decodeFields reads a write body. An empty or malformed body is a BadRequest.
func decodeFields(r io.Reader) (*Fields, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, apperr.BadRequest("Failed to read request body")
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, apperr.BadRequest("Request body is required")
	}
	var f Fields
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, apperr.BadRequest("Invalid JSON in request body").With("details", err.Error())
	}
	return &f, nil
}

// HasMetadata reports whether any record-store field is present.
func (f *Fields) HasMetadata() bool {
	return f.Username != nil || f.Caption != nil || f.Status != nil || f.OutputURL != nil
}

// HasPayload reports whether a json value is present.
func (f *Fields) HasPayload() bool {
	return len(f.JSON) > 0
}

// Payload returns the text stored in the payload store. A JSON string is
// stored as its contents; any other value as compact JSON.
func (f *Fields) Payload() string {
	if !f.HasPayload() {
		return ""
	}
	var s string
	if err := json.Unmarshal(f.JSON, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, f.JSON); err != nil {
		return string(f.JSON)
	}
	return buf.String()
}

// Properties builds the record-store property values for the present
// fields. With skipEmpty set, empty strings are treated as absent.
func (f *Fields) Properties(skipEmpty bool) map[string]any {
	props := make(map[string]any)
	present := func(s *string) bool {
		return s != nil && (!skipEmpty || *s != "")
	}
	if present(f.Username) {
		props[PropUsername] = map[string]any{"title": textValue(*f.Username)}
	}
	if present(f.Caption) {
		props[PropCaption] = map[string]any{"rich_text": textValue(*f.Caption)}
	}
	if present(f.Status) {
		props[PropStatus] = map[string]any{"status": map[string]string{"name": *f.Status}}
	}
	if present(f.OutputURL) {
		var v any
		if *f.OutputURL != "" {
			v = *f.OutputURL
		}
		props[PropOutputURL] = map[string]any{"url": v}
	}
	return props
}

func textValue(s string) []map[string]any {
	if s == "" {
		return []map[string]any{}
	}
	return []map[string]any{{"text": map[string]string{"content": s}}}
}

// NormalizeStatus upper-cases the first letter and lower-cases the rest,
// so "draft" and "DRAFT" both become "Draft".
func NormalizeStatus(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}
