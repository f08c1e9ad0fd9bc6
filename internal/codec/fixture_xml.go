package codec

import (
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/hengadev/serializers/primitive"
)

// Field attribute hints read by the fixture layout.
const (
	AttrRel     = "rel"
	AttrTo      = "to"
	AttrType    = "type"
	AttrNatural = "natural"

	RelManyToMany = "ManyToManyRel"
)

// FixtureXMLRenderer writes fixture records ({pk, model, fields}) in the
// legacy <django-objects version="1.0"> layout. Field attribute hints become
// XML attributes; natural keys are written as <natural> elements and
// many-to-many values as <object> elements.
type FixtureXMLRenderer struct{}

func (FixtureXMLRenderer) Render(w io.Writer, data any, opts Options) error {
	records, ok := data.([]any)
	if !ok {
		records = []any{data}
	}
	if _, err := io.WriteString(w, xmlHeader); err != nil {
		return err
	}
	enc := newXMLEncoder(w, opts)
	root := []xml.Attr{{Name: xml.Name{Local: "version"}, Value: "1.0"}}
	err := element(enc, "django-objects", root, func() error {
		for _, item := range records {
			record, ok := item.(*primitive.Map)
			if !ok {
				return fmt.Errorf("fixture xml: record must be a mapping, got %T", item)
			}
			if err := writeFixtureRecord(enc, record); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return finishXML(w, enc)
}

func writeFixtureRecord(enc *xml.Encoder, record *primitive.Map) error {
	var attrs []xml.Attr
	if pk, _ := record.Get("pk"); pk != nil {
		attrs = append(attrs, xmlAttr("pk", primitive.Text(pk)))
	}
	model, _ := record.Get("model")
	attrs = append(attrs, xmlAttr("model", primitive.Text(model)))

	fields, _ := record.Get("fields")
	fieldMap, ok := fields.(*primitive.Map)
	if !ok && fields != nil {
		return fmt.Errorf("fixture xml: fields must be a mapping, got %T", fields)
	}

	return element(enc, "object", attrs, func() error {
		for _, name := range fieldMap.Keys() {
			value, _ := fieldMap.Get(name)
			hints := fieldMap.Attrs(name)
			if err := writeFixtureField(enc, name, value, hints); err != nil {
				return err
			}
		}
		return nil
	})
}

func writeFixtureField(enc *xml.Encoder, name string, value any, hints map[string]string) error {
	attrs := []xml.Attr{xmlAttr("name", name)}
	keys := make([]string, 0, len(hints))
	for k := range hints {
		if k != AttrNatural {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, xmlAttr(k, hints[k]))
	}

	return element(enc, "field", attrs, func() error {
		switch {
		case value == nil:
			return element(enc, "None", nil, noBody)
		case hints[AttrRel] == RelManyToMany:
			items, ok := value.([]any)
			if !ok {
				return fmt.Errorf("fixture xml: field '%s' must hold a list, got %T", name, value)
			}
			for _, item := range items {
				if key, isKey := item.([]any); isKey {
					if err := element(enc, "object", nil, func() error { return writeNatural(enc, key) }); err != nil {
						return err
					}
					continue
				}
				if err := element(enc, "object", []xml.Attr{xmlAttr("pk", primitive.Text(item))}, noBody); err != nil {
					return err
				}
			}
			return nil
		case hints[AttrNatural] == "true":
			key, ok := value.([]any)
			if !ok {
				return fmt.Errorf("fixture xml: natural key of '%s' must be a list, got %T", name, value)
			}
			return writeNatural(enc, key)
		}
		if !primitive.IsScalar(value) {
			return fmt.Errorf("fixture xml: field '%s' holds a %T", name, value)
		}
		return enc.EncodeToken(xml.CharData(primitive.Text(value)))
	})
}

func writeNatural(enc *xml.Encoder, key []any) error {
	for _, part := range key {
		text := primitive.Text(part)
		if err := element(enc, "natural", nil, func() error { return enc.EncodeToken(xml.CharData(text)) }); err != nil {
			return err
		}
	}
	return nil
}

func noBody() error { return nil }

func xmlAttr(name, value string) xml.Attr {
	return xml.Attr{Name: xml.Name{Local: name}, Value: value}
}

// FixtureXMLParser reads the <django-objects> layout back into fixture
// records. Field attributes are kept as hints on the fields mapping. Values
// are text, natural keys lists of text, and <None/> is null.
type FixtureXMLParser struct{}

func (FixtureXMLParser) Parse(r io.Reader) (any, error) {
	dec := xml.NewDecoder(r)
	root, err := rootElement(dec)
	if err != nil {
		return nil, err
	}
	records := []any{}
	if root == nil {
		return records, nil
	}
	if root.Name.Local != "django-objects" {
		return nil, fmt.Errorf("fixture xml: unexpected root element <%s>", root.Name.Local)
	}
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("fixture xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local != "object" {
				if err := dec.Skip(); err != nil {
					return nil, fmt.Errorf("fixture xml: %w", err)
				}
				continue
			}
			record, err := readFixtureRecord(dec, t)
			if err != nil {
				return nil, fmt.Errorf("fixture xml: %w", err)
			}
			records = append(records, record)
		case xml.EndElement:
			return records, nil
		}
	}
}

func attrValue(start xml.StartElement, name string) (string, bool) {
	for _, a := range start.Attr {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

func readFixtureRecord(dec *xml.Decoder, start xml.StartElement) (*primitive.Map, error) {
	record := primitive.NewMap()
	if pk, ok := attrValue(start, "pk"); ok {
		record.Set("pk", pk)
	} else {
		record.Set("pk", nil)
	}
	model, _ := attrValue(start, "model")
	record.Set("model", model)

	fields := primitive.NewMap()
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local != "field" {
				if err := dec.Skip(); err != nil {
					return nil, err
				}
				continue
			}
			name, _ := attrValue(t, "name")
			hints := make(map[string]string)
			for _, a := range t.Attr {
				if a.Name.Local != "name" {
					hints[a.Name.Local] = a.Value
				}
			}
			value, err := readFixtureValue(dec, hints[AttrRel] == RelManyToMany)
			if err != nil {
				return nil, err
			}
			if _, isKey := value.([]any); isKey && hints[AttrRel] != RelManyToMany {
				hints[AttrNatural] = "true"
			}
			fields.SetWithAttrs(name, value, hints)
		case xml.EndElement:
			record.Set("fields", fields)
			return record, nil
		}
	}
}

// readFixtureValue reads the content of a <field> element.
func readFixtureValue(dec *xml.Decoder, many bool) (any, error) {
	var text strings.Builder
	var natural []any
	isNone := false
	items := []any{}
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.CharData:
			text.Write(t)
		case xml.StartElement:
			switch t.Name.Local {
			case "None":
				isNone = true
				if err := dec.Skip(); err != nil {
					return nil, err
				}
			case "natural":
				part, err := readText(dec)
				if err != nil {
					return nil, err
				}
				natural = append(natural, part)
			case "object":
				if pk, ok := attrValue(t, "pk"); ok {
					items = append(items, pk)
					if err := dec.Skip(); err != nil {
						return nil, err
					}
					continue
				}
				key, err := readFixtureValue(dec, false)
				if err != nil {
					return nil, err
				}
				items = append(items, key)
			default:
				if err := dec.Skip(); err != nil {
					return nil, err
				}
			}
		case xml.EndElement:
			switch {
			case isNone:
				return nil, nil
			case many:
				return items, nil
			case natural != nil:
				return natural, nil
			}
			return text.String(), nil
		}
	}
}

func readText(dec *xml.Decoder) (string, error) {
	var text strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.CharData:
			text.Write(t)
		case xml.StartElement:
			if err := dec.Skip(); err != nil {
				return "", err
			}
		case xml.EndElement:
			return text.String(), nil
		}
	}
}
