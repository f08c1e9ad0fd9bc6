package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/hengadev/serializers/primitive"
	"github.com/tidwall/jsonc"
)

// JSONRenderer writes mappings as objects in key order, or sorted when the
// "sort_keys" option is set.
type JSONRenderer struct{}

func (JSONRenderer) Render(w io.Writer, data any, opts Options) error {
	var buf bytes.Buffer
	if err := writeJSON(&buf, data, opts.flag("sort_keys")); err != nil {
		return err
	}
	if opts.Indent > 0 {
		var out bytes.Buffer
		if err := json.Indent(&out, buf.Bytes(), "", strings.Repeat(" ", opts.Indent)); err != nil {
			return err
		}
		buf = out
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(w)
	return err
}

func writeJSON(buf *bytes.Buffer, v any, sortKeys bool) error {
	switch val := v.(type) {
	case *primitive.Map:
		keys := val.Keys()
		if sortKeys {
			sort.Strings(keys)
		}
		buf.WriteByte('{')
		for i, key := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSONScalar(buf, key); err != nil {
				return err
			}
			buf.WriteByte(':')
			item, _ := val.Get(key)
			if err := writeJSON(buf, item, sortKeys); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	case []any:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSON(buf, item, sortKeys); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case time.Time:
		return writeJSONScalar(buf, primitive.FormatTime(val))
	}
	if !primitive.IsScalar(v) {
		return fmt.Errorf("json: %T is not a primitive value", v)
	}
	return writeJSONScalar(buf, v)
}

func writeJSONScalar(buf *bytes.Buffer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("json: %w", err)
	}
	buf.Write(b)
	return nil
}

// JSONParser reads JSON, tolerating comments and trailing commas. Object key
// order is preserved and integral numbers become int64.
type JSONParser struct{}

func (JSONParser) Parse(r io.Reader) (any, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
	dec.UseNumber()

	v, err := readJSON(dec)
	if err != nil {
		return nil, fmt.Errorf("json: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("json: unexpected data after top-level value")
	}
	return v, nil
}

func readJSON(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			m := primitive.NewMap()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("object key must be a string, got %v", keyTok)
				}
				value, err := readJSON(dec)
				if err != nil {
					return nil, err
				}
				m.Set(key, value)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return m, nil
		case '[':
			list := []any{}
			for dec.More() {
				item, err := readJSON(dec)
				if err != nil {
					return nil, err
				}
				list = append(list, item)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return list, nil
		}
		return nil, fmt.Errorf("unexpected delimiter %v", t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, nil
		}
		return t.Float64()
	default:
		// string, bool or nil
		return t, nil
	}
}
