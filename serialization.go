package serializers

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/hengadev/serializers/internal/codec"
)

// Format identifies a wire format, e.g. "json" or "yaml".
type Format = codec.Format

// Built-in formats.
const (
	FormatJSON       = codec.JSON
	FormatYAML       = codec.YAML
	FormatXML        = codec.XML
	FormatFixtureXML = codec.FixtureXML
	FormatCSV        = codec.CSV
	FormatHTML       = codec.HTML
	FormatCBOR       = codec.CBOR
	FormatDebug      = codec.Debug
)

var defaultCodecs = codec.Default()

// Serialize converts obj and renders it in format. An empty format uses the
// serializer's default (see WithFormat); "yml" is accepted for yaml.
//
// Example:
//
//	out, err := s.Serialize(ctx, comment, "json", serializers.Indent(2))
//	if err != nil {
//	    // handle error
//	}
func (s *Serializer) Serialize(ctx context.Context, obj any, format Format, opts ...CallOption) ([]byte, error) {
	var buf bytes.Buffer
	if err := s.SerializeTo(ctx, &buf, obj, format, opts...); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SerializeTo is Serialize writing to w.
func (s *Serializer) SerializeTo(ctx context.Context, w io.Writer, obj any, format Format, opts ...CallOption) error {
	co, err := buildCallOptions(opts)
	if err != nil {
		return err
	}
	f, err := s.resolveFormat(format)
	if err != nil {
		return err
	}
	renderer, err := s.registry().Renderer(f)
	if err != nil {
		return NewUnsupportedFormatError(f.String(), PhaseRender)
	}

	t := newTraversal(ctx, s, PhaseConvert, co)
	return t.observe("serialize", map[string]any{"format": f.String()}, func() error {
		data, err := s.convertValue(t, obj, nil, "")
		if err != nil {
			return err
		}
		if err := renderer.Render(w, data, co.renderOptions()); err != nil {
			return fmt.Errorf("render %s: %w", f, err)
		}
		return nil
	})
}

// Deserialize parses r as format and reverts the result.
//
// Example:
//
//	attrs, err := s.Deserialize(ctx, strings.NewReader(input), "yaml")
//	if serializers.IsValidationError(err) {
//	    // inspect err.(*serializers.ValidationError).Messages()
//	}
func (s *Serializer) Deserialize(ctx context.Context, r io.Reader, format Format, opts ...CallOption) (any, error) {
	co, err := buildCallOptions(opts)
	if err != nil {
		return nil, err
	}
	f, err := s.resolveFormat(format)
	if err != nil {
		return nil, err
	}
	parser, err := s.registry().Parser(f)
	if err != nil {
		return nil, NewUnsupportedFormatError(f.String(), PhaseParse)
	}

	t := newTraversal(ctx, s, PhaseRevert, co)
	var out any
	err = t.observe("deserialize", map[string]any{"format": f.String()}, func() error {
		data, err := parser.Parse(r)
		if err != nil {
			return fmt.Errorf("parse %s: %w", f, err)
		}
		out, err = s.revertValue(t, data)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeserializeBytes is Deserialize reading from data.
func (s *Serializer) DeserializeBytes(ctx context.Context, data []byte, format Format, opts ...CallOption) (any, error) {
	return s.Deserialize(ctx, bytes.NewReader(data), format, opts...)
}

// Formats lists the formats the serializer can render.
func (s *Serializer) Formats() []Format {
	return s.registry().Formats()
}

func (s *Serializer) resolveFormat(format Format) (Format, error) {
	if format == "" {
		if s.format == "" {
			return FormatJSON, nil
		}
		return s.format, nil
	}
	f, err := codec.ParseFormat(string(format))
	if err != nil {
		return "", NewUnsupportedFormatError(string(format), PhaseRender)
	}
	return f, nil
}

func (s *Serializer) registry() *codec.Registry {
	if s.codecs != nil {
		return s.codecs
	}
	return defaultCodecs
}

// ParseFormat parses a format identifier, accepting "yml" for yaml.
func ParseFormat(s string) (Format, error) {
	f, err := codec.ParseFormat(s)
	if err != nil {
		return "", NewUnsupportedFormatError(s, PhaseParse)
	}
	return f, nil
}

// FormatFromPath guesses the format of a file from its extension, ignoring a
// trailing ".zst".
func FormatFromPath(path string) (Format, error) {
	return codec.FormatFromPath(path)
}

// AllFormats lists every built-in format.
func AllFormats() []Format {
	return codec.AllFormats()
}
