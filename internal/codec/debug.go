package codec

import (
	"io"

	"github.com/davecgh/go-spew/spew"
	"github.com/hengadev/serializers/primitive"
)

var debugConfig = spew.ConfigState{
	Indent:                  "  ",
	SortKeys:                true,
	DisablePointerAddresses: true,
	DisableCapacities:       true,
}

// DebugRenderer dumps the structure with its Go types. Mapping order is not
// kept.
type DebugRenderer struct{}

func (DebugRenderer) Render(w io.Writer, data any, _ Options) error {
	debugConfig.Fdump(w, primitive.ToGo(data))
	return nil
}
