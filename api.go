package serializers

import (
	"context"
	"fmt"
	"io"

	"github.com/hengadev/serializers/orm"
)

// ToPrimitive converts obj with an object serializer discovering every
// public attribute.
func ToPrimitive(ctx context.Context, obj any, opts ...CallOption) (any, error) {
	s, err := NewObjectSerializer(nil)
	if err != nil {
		return nil, err
	}
	return s.Convert(ctx, obj, opts...)
}

// Transcode parses r as from and renders the primitives as to, without
// reverting them. Fixture dumps move between json, yaml, cbor and
// fixture-xml this way.
func Transcode(ctx context.Context, r io.Reader, w io.Writer, from, to Format, opts ...CallOption) error {
	co, err := buildCallOptions(opts)
	if err != nil {
		return err
	}
	parser, err := defaultCodecs.Parser(from)
	if err != nil {
		return NewUnsupportedFormatError(from.String(), PhaseParse)
	}
	renderer, err := defaultCodecs.Renderer(to)
	if err != nil {
		return NewUnsupportedFormatError(to.String(), PhaseRender)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := parser.Parse(r)
	if err != nil {
		return fmt.Errorf("parse %s: %w", from, err)
	}
	if err := renderer.Render(w, data, co.renderOptions()); err != nil {
		return fmt.Errorf("render %s: %w", to, err)
	}
	return nil
}

// DumpData writes objs, a Collection, a slice or a single instance, in the
// fixture layout.
//
// Example:
//
//	err := serializers.DumpData(ctx, os.Stdout, registry, store.All(post), "json",
//	    serializers.NaturalKeys(true), serializers.Indent(2))
func DumpData(ctx context.Context, w io.Writer, registry *orm.Registry, objs any, format Format, opts ...CallOption) error {
	s, err := NewFixtureSerializer(registry)
	if err != nil {
		return err
	}
	items, err := orm.Instances(ctx, objs)
	if err != nil {
		return fmt.Errorf("list instances: %w", err)
	}
	return s.SerializeTo(ctx, w, items, format, opts...)
}

// LoadData parses fixture input and returns the objects it describes. With
// a non-nil saver each object is saved, in input order, before the next
// entry is reverted, so natural keys may refer to objects defined earlier in
// the same input.
func LoadData(ctx context.Context, r io.Reader, registry *orm.Registry, format Format, saver orm.Saver, opts ...CallOption) ([]*orm.DeserializedObject, error) {
	s, err := NewFixtureSerializer(registry)
	if err != nil {
		return nil, err
	}
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
	data, err := parser.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", f, err)
	}

	var items []any
	switch v := data.(type) {
	case []any:
		items = v
	case nil:
	default:
		items = []any{v}
	}
	objs := make([]*orm.DeserializedObject, 0, len(items))
	for i, item := range items {
		out, err := s.revert(ctx, item, co)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		obj, ok := out.(*orm.DeserializedObject)
		if !ok {
			return nil, fmt.Errorf("%w: entry %d reverted to %T", ErrConversion, i, out)
		}
		if saver != nil {
			if err := saver.Save(ctx, obj); err != nil {
				return nil, fmt.Errorf("save %v: %w", obj, err)
			}
		}
		objs = append(objs, obj)
	}
	return objs, nil
}
