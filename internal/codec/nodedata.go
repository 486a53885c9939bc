package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/dusk-indust/roadmap/internal/graph"
)

// decodeNodeData parses the data column field by field. err is set only
// when raw is not a JSON object at all. A field of the wrong type reads as
// its zero value and is reported in fieldErrs. Some legacy rows hold the
// JSON document encoded a second time as a JSON string; those are
// unwrapped.
func decodeNodeData(id, raw string) (d graph.NodeData, fieldErrs error, err error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed == "null" {
		return d, nil, nil
	}
	fields, err := dataFields(trimmed)
	if err != nil {
		return d, nil, err
	}

	var problems []error
	decode := func(name string, fn func(json.RawMessage) error) {
		v, ok := fields[name]
		if !ok {
			return
		}
		if ferr := fn(v); ferr != nil {
			problems = append(problems, &SerializationError{Entity: "node", ID: id, Field: name, Err: ferr})
		}
	}

	for _, f := range []struct {
		name string
		dst  *string
	}{
		{"label", &d.Label},
		{"code", &d.Code},
		{"description", &d.Description},
		{"category", &d.Category},
		{"difficulty", &d.Difficulty},
		{"nodeColor", &d.NodeColor},
		{"nodeBgColor", &d.NodeBgColor},
		{"textColor", &d.TextColor},
	} {
		decode(f.name, func(v json.RawMessage) error {
			s, err := scalarString(v)
			*f.dst = s
			return err
		})
	}
	decode("credits", func(v json.RawMessage) error {
		var c graph.Credits
		if err := json.Unmarshal(v, &c); err != nil {
			return err
		}
		d.Credits = c
		return nil
	})
	decode("completed", func(v json.RawMessage) error {
		return unmarshalNullable(v, &d.Completed)
	})
	decode("completedAt", func(v json.RawMessage) error {
		t, err := parseCompletedAt(v)
		d.CompletedAt = t
		return err
	})
	decode("fontSize", func(v json.RawMessage) error {
		var f graph.FontSize
		if err := json.Unmarshal(v, &f); err != nil {
			return err
		}
		d.FontSize = f
		return nil
	})
	decode("documents", func(v json.RawMessage) error {
		var docs []graph.Document
		if err := json.Unmarshal(v, &docs); err != nil {
			return err
		}
		d.Documents = docs
		return nil
	})
	return d, errors.Join(problems...), nil
}

// dataFields splits a JSON object into its raw members.
func dataFields(trimmed string) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	err := json.Unmarshal([]byte(trimmed), &fields)
	if err == nil && fields != nil {
		return fields, nil
	}
	if err == nil {
		err = errors.New("data is not a JSON object")
	}
	if strings.HasPrefix(trimmed, `"`) {
		var inner string
		if json.Unmarshal([]byte(trimmed), &inner) == nil {
			var nested map[string]json.RawMessage
			if json.Unmarshal([]byte(strings.TrimSpace(inner)), &nested) == nil && nested != nil {
				return nested, nil
			}
		}
	}
	return nil, err
}

// scalarString reads a string field. Numbers and booleans keep their
// literal text; null reads as empty.
func scalarString(v json.RawMessage) (string, error) {
	v = bytes.TrimSpace(v)
	switch {
	case len(v) == 0 || bytes.Equal(v, []byte("null")):
		return "", nil
	case v[0] == '"':
		var s string
		err := json.Unmarshal(v, &s)
		return s, err
	case v[0] == '{' || v[0] == '[':
		return "", fmt.Errorf("expected a string, got %s", kindOf(v[0]))
	default:
		return string(v), nil
	}
}

func unmarshalNullable[T any](v json.RawMessage, dst *T) error {
	var zero T
	if bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
		*dst = zero
		return nil
	}
	if err := json.Unmarshal(v, dst); err != nil {
		*dst = zero
		return err
	}
	return nil
}

// parseCompletedAt accepts an RFC 3339 string, epoch milliseconds as a
// number or a numeric string, an empty string and null.
func parseCompletedAt(v json.RawMessage) (*time.Time, error) {
	v = bytes.TrimSpace(v)
	if len(v) == 0 || bytes.Equal(v, []byte("null")) {
		return nil, nil
	}
	var text string
	if v[0] == '"' {
		if err := json.Unmarshal(v, &text); err != nil {
			return nil, err
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return nil, nil
		}
		if t, err := time.Parse(time.RFC3339Nano, text); err == nil {
			return &t, nil
		}
	} else {
		text = string(v)
	}
	ms, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(ms) || math.IsInf(ms, 0) {
		return nil, fmt.Errorf("unrecognized timestamp %s", v)
	}
	t := time.UnixMilli(int64(ms)).UTC()
	return &t, nil
}

func kindOf(b byte) string {
	if b == '{' {
		return "object"
	}
	return "array"
}
