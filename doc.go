// Package serializers converts Go objects to primitive structures and back
// through declared, composable fields, and renders those structures to wire
// formats.
//
// Serialization runs in two stages. Convert turns objects into primitives:
// nil, bool, int64, float64, string, time.Time, []any and the ordered
// *primitive.Map. A renderer then writes the primitives as json, yaml, xml,
// csv, html, cbor or the fixture layout. Deserialization parses input back
// into primitives and Revert turns them into attribute maps or objects.
//
// # Quick Start
//
// Declare a schema and build a serializer:
//
//	schema := serializers.NewSchema().
//	    Add("title", serializers.NewCharField()).
//	    Add("content", serializers.NewCharField()).
//	    Add("created", serializers.NewDateTimeField(serializers.Label("created time")))
//
//	s, err := serializers.NewSerializer(schema)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	out, err := s.Serialize(ctx, comment, "json")
//	// {"title": "blah", "content": "foo bar baz", "created time": "2012-01-01T12:00:00Z"}
//
//	attrs, err := s.Deserialize(ctx, bytes.NewReader(out), "json")
//	// map[content:foo bar baz created:2012-01-01 12:00:00 +0000 UTC title:blah]
//
// # Fields
//
// A field reads one value from the object, through its name, a Source path
// ("author.name"), the whole object (Source(SourceSelf)) or an Access
// function. Typed fields coerce reverted input: CharField, IntegerField,
// FloatField, BooleanField, DateTimeField, DateField, UUIDField and the
// write-only PasswordField. ReadOnly fields are never reverted.
//
// # Nesting, depth and recursion
//
// A *Serializer is itself a field. Nested serializers expand related objects
// into nested mappings while the depth allows:
//
//	s, _ := serializers.NewSerializer(schema, serializers.WithDepth(1))
//	out, _ := s.Convert(ctx, post, serializers.Depth(2))
//
// Past the depth, and whenever an object is reached again through itself,
// the nested serializer is replaced by a flat field for that one value, so
// conversion always terminates on cyclic graphs.
//
// # Default fields
//
// NewObjectSerializer discovers the public attributes of plain values.
// NewModelSerializer discovers the fields of orm.Model instances, writing
// relations as primary keys unless a depth is set. NewFixtureSerializer writes
// the {"pk", "model", "fields"} layout used to dump and load databases,
// with natural keys on request:
//
//	err := serializers.DumpData(ctx, os.Stdout, registry, store.All(post), "xml",
//	    serializers.NaturalKeys(true))
//
// # Call options
//
// Fields, Exclude, Include, Depth, NaturalKeys and Indent override the
// declaration for one call only; a Serializer holds no per-call state and may
// be shared between goroutines.
//
// # Errors
//
// Failures are classified with IsConversionError, IsValidationError,
// IsLookupError, IsConfigurationError and IsFormatError. Revert collects the
// failures of every field into one *ValidationError:
//
//	_, err := s.Revert(ctx, data)
//	var verr *serializers.ValidationError
//	if errors.As(err, &verr) {
//	    fmt.Println(verr.Messages()) // map[created:... title:...]
//	}
package serializers
