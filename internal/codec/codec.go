// Package codec renders primitive structures to wire formats and parses them
// back. It only ever sees values of the primitive set: nil, bool, int64,
// float64, string, time.Time, []any and *primitive.Map.
package codec

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

var ErrUnsupportedFormat = errors.New("unsupported format")

// Format identifies a wire format.
type Format string

const (
	// JSON renders ordered objects; the parser accepts comments and trailing
	// commas.
	JSON Format = "json"
	// YAML renders block style by default and keeps key order both ways.
	YAML Format = "yaml"
	// XML uses a generic object/list/item layout.
	XML Format = "xml"
	// FixtureXML is the legacy <django-objects> dump layout.
	FixtureXML Format = "fixture-xml"
	// CSV writes one row per mapping under a header row.
	CSV Format = "csv"
	// HTML renders tables and lists, and cannot be parsed.
	HTML Format = "html"
	// CBOR uses core deterministic encoding.
	CBOR Format = "cbor"
	// Debug dumps the structure with go-spew, and cannot be parsed.
	Debug Format = "debug"
)

// IsValid checks if the format is known
func (f Format) IsValid() bool {
	switch f {
	case JSON, YAML, XML, FixtureXML, CSV, HTML, CBOR, Debug:
		return true
	default:
		return false
	}
}

// String returns the string representation of the format
func (f Format) String() string {
	return string(f)
}

// Extension returns the file extension conventionally used for the format.
func (f Format) Extension() string {
	switch f {
	case FixtureXML:
		return ".xml"
	case Debug:
		return ".txt"
	default:
		return "." + string(f)
	}
}

// ParseFormat parses a string into a Format and validates it
func ParseFormat(s string) (Format, error) {
	format := Format(strings.ToLower(strings.TrimSpace(s)))
	if format == "yml" {
		format = YAML
	}
	if !format.IsValid() {
		return "", fmt.Errorf("%w: '%s': must be one of %v", ErrUnsupportedFormat, s, AllFormats())
	}
	return format, nil
}

// FormatFromPath guesses a format from a file name, ignoring a trailing .zst.
func FormatFromPath(path string) (Format, error) {
	path = strings.TrimSuffix(path, ".zst")
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return "", fmt.Errorf("%w: cannot guess the format of '%s'", ErrUnsupportedFormat, path)
	}
	return ParseFormat(ext)
}

// AllFormats returns all known formats
func AllFormats() []Format {
	return []Format{JSON, YAML, XML, FixtureXML, CSV, HTML, CBOR, Debug}
}

// Options are passed to every Render call. Extra carries format-specific
// settings such as "sort_keys" for json and "default_flow_style" for yaml.
type Options struct {
	Indent int
	Extra  map[string]any
}

func (o Options) flag(name string) bool {
	b, _ := o.Extra[name].(bool)
	return b
}

// Renderer writes a primitive structure.
type Renderer interface {
	Render(w io.Writer, data any, opts Options) error
}

// Parser reads a primitive structure.
type Parser interface {
	Parse(r io.Reader) (any, error)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(w io.Writer, data any, opts Options) error

func (f RendererFunc) Render(w io.Writer, data any, opts Options) error { return f(w, data, opts) }

// ParserFunc adapts a function to Parser.
type ParserFunc func(r io.Reader) (any, error)

func (f ParserFunc) Parse(r io.Reader) (any, error) { return f(r) }

// Registry maps format identifiers to renderers and parsers. It is safe for
// concurrent use.
type Registry struct {
	mu        sync.RWMutex
	renderers map[Format]Renderer
	parsers   map[Format]Parser
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		renderers: make(map[Format]Renderer),
		parsers:   make(map[Format]Parser),
	}
}

// Default returns a registry with every built-in format.
func Default() *Registry {
	r := NewRegistry()
	r.Register(JSON, JSONRenderer{}, JSONParser{})
	r.Register(YAML, YAMLRenderer{}, YAMLParser{})
	r.Register(XML, XMLRenderer{}, XMLParser{})
	r.Register(FixtureXML, FixtureXMLRenderer{}, FixtureXMLParser{})
	r.Register(CSV, CSVRenderer{}, CSVParser{})
	r.Register(HTML, HTMLRenderer{}, nil)
	r.Register(CBOR, CBORRenderer{}, CBORParser{})
	r.Register(Debug, DebugRenderer{}, nil)
	return r
}

// FixtureRegistry is Default with "xml" bound to the fixture layout.
func FixtureRegistry() *Registry {
	r := Default()
	r.Register(XML, FixtureXMLRenderer{}, FixtureXMLParser{})
	return r
}

// Register binds a renderer and a parser to format. A nil renderer or parser
// leaves that direction unsupported.
func (r *Registry) Register(format Format, renderer Renderer, parser Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if renderer != nil {
		r.renderers[format] = renderer
	} else {
		delete(r.renderers, format)
	}
	if parser != nil {
		r.parsers[format] = parser
	} else {
		delete(r.parsers, format)
	}
}

// Renderer returns the renderer bound to format.
func (r *Registry) Renderer(format Format) (Renderer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	renderer, ok := r.renderers[format]
	if !ok {
		return nil, fmt.Errorf("%w: cannot render '%s'", ErrUnsupportedFormat, format)
	}
	return renderer, nil
}

// Parser returns the parser bound to format.
func (r *Registry) Parser(format Format) (Parser, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	parser, ok := r.parsers[format]
	if !ok {
		return nil, fmt.Errorf("%w: cannot parse '%s'", ErrUnsupportedFormat, format)
	}
	return parser, nil
}

// Formats lists the formats with a renderer, sorted.
func (r *Registry) Formats() []Format {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Format, 0, len(r.renderers))
	for f := range r.renderers {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
