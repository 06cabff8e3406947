package patch

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"livetodo/internal/tree"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema.json
var schemaJSON string

const schemaURL = "https://livetodo.local/patch.schema.json"

var frameSchema = mustCompileFrameSchema()

func mustCompileFrameSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, strings.NewReader(schemaJSON)); err != nil {
		panic(fmt.Sprintf("patch: add schema resource: %v", err))
	}
	return compiler.MustCompile(schemaURL)
}

var (
	ErrMalformed   = errors.New("malformed frame")
	ErrInvalid     = errors.New("invalid frame")
	ErrUnknownType = errors.New("unknown message type")
)

// DecodeError reports a frame that could not be turned into a Message.
// Location is a JSON-pointer-like path into the frame when known.
type DecodeError struct {
	Reason   string
	Location string
	Err      error
}

func (e *DecodeError) Error() string {
	var b strings.Builder
	b.WriteString("decode patch: ")
	b.WriteString(e.Err.Error())
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if e.Location != "" {
		b.WriteString(" (at ")
		b.WriteString(e.Location)
		b.WriteString(")")
	}
	return b.String()
}

func (e *DecodeError) Unwrap() error { return e.Err }

type wireFrame struct {
	Type string          `json:"type"`
	Path *string         `json:"path,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Decode parses and validates one text frame.
func Decode(b []byte) (Message, error) {
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, &DecodeError{Reason: err.Error(), Err: ErrMalformed}
	}
	if err := frameSchema.Validate(doc); err != nil {
		return nil, schemaDecodeError(err)
	}

	var f wireFrame
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, &DecodeError{Reason: err.Error(), Err: ErrMalformed}
	}

	switch Kind(f.Type) {
	case KindLoad:
		var data map[string]any
		if err := json.Unmarshal(f.Data, &data); err != nil {
			return nil, &DecodeError{Reason: err.Error(), Location: "/data", Err: ErrInvalid}
		}
		if data == nil {
			data = map[string]any{}
		}
		return Load{Data: data}, nil
	case KindAdd, KindUpdate, KindRemove:
		p, err := tree.ParsePath(*f.Path)
		if err != nil {
			return nil, &DecodeError{Reason: err.Error(), Location: "/path", Err: ErrInvalid}
		}
		if len(p) == 0 {
			return nil, &DecodeError{Reason: "path addresses the root", Location: "/path", Err: fmt.Errorf("%w: %w", ErrInvalid, tree.ErrEmptyPath)}
		}
		var data any
		if len(f.Data) > 0 {
			if err := json.Unmarshal(f.Data, &data); err != nil {
				return nil, &DecodeError{Reason: err.Error(), Location: "/data", Err: ErrInvalid}
			}
		}
		switch Kind(f.Type) {
		case KindAdd:
			return Add{Path: p, Data: data}, nil
		case KindUpdate:
			return Update{Path: p, Data: data}, nil
		default:
			return Remove{Path: p, Data: data}, nil
		}
	default:
		return nil, &DecodeError{Reason: fmt.Sprintf("%q", f.Type), Location: "/type", Err: ErrUnknownType}
	}
}

// Encode renders m as a text frame.
func Encode(m Message) ([]byte, error) {
	type frame struct {
		Type Kind   `json:"type"`
		Path string `json:"path,omitempty"`
		Data any    `json:"data,omitempty"`
	}
	switch m := m.(type) {
	case Load:
		data := m.Data
		if data == nil {
			data = map[string]any{}
		}
		return json.Marshal(frame{Type: KindLoad, Data: data})
	case Add:
		return encodeKeyed(KindAdd, m.Path, m.Data)
	case Update:
		return encodeKeyed(KindUpdate, m.Path, m.Data)
	case Remove:
		if len(m.Path) == 0 {
			return nil, fmt.Errorf("encode remove: %w", tree.ErrEmptyPath)
		}
		return json.Marshal(frame{Type: KindRemove, Path: m.Path.String(), Data: m.Data})
	default:
		return nil, fmt.Errorf("encode: unsupported message %T", m)
	}
}

func encodeKeyed(kind Kind, p tree.Path, data any) ([]byte, error) {
	if len(p) == 0 {
		return nil, fmt.Errorf("encode %s: %w", kind, tree.ErrEmptyPath)
	}
	// data is always present for add/update, even when null.
	return json.Marshal(struct {
		Type Kind   `json:"type"`
		Path string `json:"path"`
		Data any    `json:"data"`
	}{Type: kind, Path: p.String(), Data: data})
}

func schemaDecodeError(err error) error {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return &DecodeError{Reason: err.Error(), Err: ErrInvalid}
	}
	leaf := firstLeafCause(ve)
	loc := leaf.InstanceLocation
	if loc == "" {
		loc = "/"
	}
	return &DecodeError{Reason: leaf.Message, Location: loc, Err: ErrInvalid}
}

func firstLeafCause(ve *jsonschema.ValidationError) *jsonschema.ValidationError {
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	return ve
}
