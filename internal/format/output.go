// Package format renders command output.
package format

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Write writes v in the requested format.
//
// Supported formats:
// - json (default)
// - text: an indented key outline, for reading trees in a terminal
func Write(w io.Writer, v any, format string, pretty bool) error {
	switch format {
	case "", "json":
		return WriteJSON(w, v, pretty)
	case "text":
		return WriteText(w, v)
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

// WriteJSON writes strict JSON, one document per line unless pretty.
func WriteJSON(w io.Writer, v any, pretty bool) error {
	var b []byte
	var err error
	if pretty {
		b, err = json.MarshalIndent(v, "", "  ")
	} else {
		b, err = json.Marshal(v)
	}
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(w, string(b))
	return err
}

// WriteText writes v as an outline. Structs are normalized through JSON
// first so json tags decide the keys.
func WriteText(w io.Writer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var x any
	if err := json.Unmarshal(b, &x); err != nil {
		return err
	}

	var sb strings.Builder
	writeOutline(&sb, x, 0)
	if sb.Len() == 0 {
		sb.WriteString("(empty)\n")
	}
	_, err = io.WriteString(w, sb.String())
	return err
}

func writeOutline(sb *strings.Builder, v any, depth int) {
	pad := strings.Repeat("  ", depth)
	switch x := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			child := x[k]
			if isContainer(child) {
				sb.WriteString(pad + k + ":\n")
				writeOutline(sb, child, depth+1)
				continue
			}
			sb.WriteString(pad + k + ": " + scalar(child) + "\n")
		}
	case []any:
		for _, child := range x {
			if isContainer(child) {
				sb.WriteString(pad + "-\n")
				writeOutline(sb, child, depth+1)
				continue
			}
			sb.WriteString(pad + "- " + scalar(child) + "\n")
		}
	default:
		sb.WriteString(pad + scalar(x) + "\n")
	}
}

func isContainer(v any) bool {
	switch x := v.(type) {
	case map[string]any:
		return len(x) > 0
	case []any:
		return len(x) > 0
	}
	return false
}

func scalar(v any) string {
	switch v.(type) {
	case map[string]any:
		return "{}"
	case []any:
		return "[]"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
