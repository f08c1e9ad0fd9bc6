package codec

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/hengadev/serializers/primitive"
)

const xmlHeader = `<?xml version="1.0" encoding="utf-8"?>` + "\n"

// XMLRenderer writes mappings as <object> elements with one child per key
// and sequences as <list> elements of <item> children. Null is an empty
// element.
type XMLRenderer struct{}

func (XMLRenderer) Render(w io.Writer, data any, opts Options) error {
	if _, err := io.WriteString(w, xmlHeader); err != nil {
		return err
	}
	enc := newXMLEncoder(w, opts)
	if err := writeXML(enc, data); err != nil {
		return err
	}
	return finishXML(w, enc)
}

func newXMLEncoder(w io.Writer, opts Options) *xml.Encoder {
	enc := xml.NewEncoder(w)
	if opts.Indent > 0 {
		enc.Indent("", strings.Repeat(" ", opts.Indent))
	}
	return enc
}

func finishXML(w io.Writer, enc *xml.Encoder) error {
	if err := enc.Flush(); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

func writeXML(enc *xml.Encoder, v any) error {
	switch val := v.(type) {
	case *primitive.Map:
		return element(enc, "object", nil, func() error {
			for _, key := range val.Keys() {
				item, _ := val.Get(key)
				if err := element(enc, key, nil, func() error { return writeXML(enc, item) }); err != nil {
					return err
				}
			}
			return nil
		})
	case []any:
		return element(enc, "list", nil, func() error {
			for _, item := range val {
				if err := element(enc, "item", nil, func() error { return writeXML(enc, item) }); err != nil {
					return err
				}
			}
			return nil
		})
	case nil:
		return nil
	}
	if !primitive.IsScalar(v) {
		return fmt.Errorf("xml: %T is not a primitive value", v)
	}
	return enc.EncodeToken(xml.CharData(primitive.Text(v)))
}

func element(enc *xml.Encoder, name string, attrs []xml.Attr, body func() error) error {
	start := xml.StartElement{Name: xml.Name{Local: name}, Attr: attrs}
	if err := enc.EncodeToken(start); err != nil {
		return fmt.Errorf("xml: %w", err)
	}
	if err := body(); err != nil {
		return err
	}
	if err := enc.EncodeToken(start.End()); err != nil {
		return fmt.Errorf("xml: %w", err)
	}
	return nil
}

// XMLParser reads the layout XMLRenderer writes. Every scalar comes back as
// text, and empty elements as the empty string.
type XMLParser struct{}

func (XMLParser) Parse(r io.Reader) (any, error) {
	dec := xml.NewDecoder(r)
	start, err := rootElement(dec)
	if err != nil {
		return nil, err
	}
	if start == nil {
		return nil, nil
	}
	v, err := readXMLContent(dec, *start)
	if err != nil {
		return nil, fmt.Errorf("xml: %w", err)
	}
	return v, nil
}

func rootElement(dec *xml.Decoder) (*xml.StartElement, error) {
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("xml: %w", err)
		}
		if start, ok := tok.(xml.StartElement); ok {
			return &start, nil
		}
	}
}

func isContainer(name string) bool {
	return name == "object" || name == "list"
}

// readXMLContent reads up to the end of start. A container element is read
// as a mapping or list; any other element yields its text, or the container
// nested inside it.
func readXMLContent(dec *xml.Decoder, start xml.StartElement) (any, error) {
	if isContainer(start.Name.Local) {
		return readXMLContainer(dec, start)
	}
	var text strings.Builder
	var nested any
	hasNested := false
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.CharData:
			text.Write(t)
		case xml.StartElement:
			if !isContainer(t.Name.Local) {
				if err := dec.Skip(); err != nil {
					return nil, err
				}
				continue
			}
			nested, err = readXMLContainer(dec, t)
			if err != nil {
				return nil, err
			}
			hasNested = true
		case xml.EndElement:
			if hasNested {
				return nested, nil
			}
			return text.String(), nil
		}
	}
}

func readXMLContainer(dec *xml.Decoder, start xml.StartElement) (any, error) {
	m := primitive.NewMap()
	list := []any{}
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			value, err := readXMLContent(dec, t)
			if err != nil {
				return nil, err
			}
			if start.Name.Local == "object" {
				m.Set(t.Name.Local, value)
			} else {
				list = append(list, value)
			}
		case xml.EndElement:
			if start.Name.Local == "object" {
				return m, nil
			}
			return list, nil
		}
	}
}
