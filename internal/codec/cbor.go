package codec

import (
	"errors"
	"fmt"
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/hengadev/serializers/primitive"
)

// cborEncMode uses Core Deterministic Encoding (RFC 8949 §4.2), so mapping
// keys come out sorted. Times are tagged RFC 3339 text.
var cborEncMode cbor.EncMode

var cborDecMode cbor.DecMode

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	encOptions.TimeTag = cbor.EncTagRequired
	cborEncMode, err = encOptions.EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	cborDecMode, err = cbor.DecOptions{
		// Parsed mappings must have string keys.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// CBORRenderer writes one CBOR data item.
type CBORRenderer struct{}

func (CBORRenderer) Render(w io.Writer, data any, _ Options) error {
	if err := primitive.Validate(data); err != nil {
		return fmt.Errorf("cbor: %w", err)
	}
	if err := cborEncMode.NewEncoder(w).Encode(primitive.ToGo(data)); err != nil {
		return fmt.Errorf("cbor: %w", err)
	}
	return nil
}

// CBORParser reads one CBOR data item. Mapping keys come back sorted.
type CBORParser struct{}

func (CBORParser) Parse(r io.Reader) (any, error) {
	var v any
	if err := cborDecMode.NewDecoder(r).Decode(&v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("cbor: %w", err)
	}
	out, err := primitive.FromGo(v)
	if err != nil {
		return nil, fmt.Errorf("cbor: %w", err)
	}
	return out, nil
}
