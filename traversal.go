package serializers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"reflect"

	"github.com/hengadev/serializers/internal/monitoring"
	"github.com/hengadev/serializers/orm"
)

// Traversal is the state of one Convert or Revert call. It is created empty
// by every top-level call and threaded through the whole traversal, so a
// Serializer holds no per-call state and can be used concurrently.
type Traversal struct {
	ctx   context.Context
	phase Phase
	root  *Serializer
	// target is the serializer call-time field selection applies to.
	target *Serializer
	opts   callOptions

	frames []frame
	// sequences holds the backing arrays of slices being converted.
	sequences map[uintptr]bool
	level     int
	// limit is the absolute level at which nested serializers flatten; -1
	// means unbounded.
	limit int

	logger  *slog.Logger
	hook    monitoring.ObservabilityHook
	metrics monitoring.MetricsCollector
}

type identity struct {
	typ reflect.Type
	ptr uintptr
	// key identifies records by model and primary key, since a store may
	// load the same row into distinct values.
	key string
}

type frame struct {
	obj        any
	id         identity
	hasID      bool
	serializer *Serializer
	class      any
}

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTraversal(ctx context.Context, root *Serializer, phase Phase, opts callOptions) *Traversal {
	if ctx == nil {
		ctx = context.Background()
	}
	t := &Traversal{
		ctx:     ctx,
		phase:   phase,
		root:    root,
		target:  root,
		opts:    opts,
		limit:   -1,
		logger:  root.logger,
		hook:    root.hook,
		metrics: root.metrics,
	}
	if root.routeTo != nil {
		t.target = root.routeTo
	}
	switch {
	case opts.depthSet && opts.unbounded:
	case opts.depthSet:
		t.limit = opts.depth
	case root.depthSet:
		t.limit = root.depth
	case root.flatByDefault:
		t.limit = 0
	}
	if t.logger == nil {
		t.logger = discardLogger
	}
	return t
}

// Context returns the context of the call.
func (t *Traversal) Context() context.Context {
	if t == nil {
		return context.Background()
	}
	return t.ctx
}

// Value returns the opaque value passed with ContextValue.
func (t *Traversal) Value() any {
	if t == nil {
		return nil
	}
	return t.opts.value
}

// Phase reports whether the call converts or reverts.
func (t *Traversal) Phase() Phase {
	if t == nil {
		return PhaseUnknown
	}
	return t.phase
}

// NaturalKeys reports whether relations should use natural keys.
func (t *Traversal) NaturalKeys() bool {
	return t != nil && t.opts.naturalKeys
}

// Level is the number of nested serializers entered so far.
func (t *Traversal) Level() int {
	if t == nil {
		return 0
	}
	return t.level
}

// Root is the serializer the call was made on.
func (t *Traversal) Root() *Serializer {
	if t == nil {
		return nil
	}
	return t.root
}

// Logger returns the logger of the call.
func (t *Traversal) Logger() *slog.Logger {
	if t == nil || t.logger == nil {
		return discardLogger
	}
	return t.logger
}

// Object returns the object currently being converted, or nil.
func (t *Traversal) Object() any {
	if f := t.top(); f != nil {
		return f.obj
	}
	return nil
}

// Class returns the class resolved for the data currently being reverted.
func (t *Traversal) Class() any {
	if f := t.top(); f != nil {
		return f.class
	}
	return nil
}

// Exhausted reports whether nested serializers at the current level must be
// flattened.
func (t *Traversal) Exhausted() bool {
	return t != nil && t.limit >= 0 && t.level >= t.limit
}

// InChain reports whether obj is already being converted further up the
// current path. Only values with identity (pointers and maps) can be found.
func (t *Traversal) InChain(obj any) bool {
	if t == nil {
		return false
	}
	id, ok := identityOf(obj)
	if !ok {
		return false
	}
	for _, f := range t.frames {
		if f.hasID && f.id == id {
			return true
		}
	}
	return false
}

// enterSequence marks the slice v as being converted. It reports false when
// v is already being converted further up, i.e. v contains itself.
func (t *Traversal) enterSequence(v any) (leave func(), ok bool) {
	rv := reflect.ValueOf(v)
	if t == nil || rv.Kind() != reflect.Slice || rv.Len() == 0 {
		return func() {}, true
	}
	ptr := rv.Pointer()
	if t.sequences[ptr] {
		return nil, false
	}
	if t.sequences == nil {
		t.sequences = make(map[uintptr]bool)
	}
	t.sequences[ptr] = true
	return func() { delete(t.sequences, ptr) }, true
}

func (t *Traversal) top() *frame {
	if t == nil || len(t.frames) == 0 {
		return nil
	}
	return &t.frames[len(t.frames)-1]
}

func (t *Traversal) push(obj any, s *Serializer, class any) {
	id, ok := identityOf(obj)
	t.frames = append(t.frames, frame{obj: obj, id: id, hasID: ok, serializer: s, class: class})
}

func (t *Traversal) pop() {
	t.frames = t.frames[:len(t.frames)-1]
}

// descend runs fn one level deeper, narrowing the limit to the child's own
// depth when it declares one.
func (t *Traversal) descend(child *Serializer, fn func() (any, error)) (any, error) {
	level, limit := t.level, t.limit
	defer func() { t.level, t.limit = level, limit }()

	t.level++
	if child.depthSet {
		own := t.level + child.depth
		if t.limit < 0 || own < t.limit {
			t.limit = own
		}
	}
	return fn()
}

// flattened records that a nested field was replaced by its flat form.
func (t *Traversal) flattened(field, reason string) {
	t.Logger().Warn("flattening nested field",
		slog.String("field", field),
		slog.String("reason", reason),
		slog.Int("level", t.level),
	)
	meta := map[string]any{"field": field, "reason": reason, "level": t.level}
	if t.hook != nil {
		t.hook.OnFlatten(t.ctx, field, reason, meta)
	}
	if t.metrics != nil {
		t.metrics.IncrementCounter(monitoring.MetricFlattened, map[string]string{"reason": reason})
	}
}

// fieldOptions returns the field selection in force for s.
func (t *Traversal) fieldOptions(s *Serializer) selection {
	sel := s.selection
	if t == nil || s != t.target {
		return sel
	}
	if t.opts.fieldsSet {
		sel.fields = t.opts.fields
		sel.fieldsSet = true
	}
	if t.opts.excludeSet {
		sel.exclude = t.opts.exclude
	}
	if t.opts.includeSet {
		sel.include = t.opts.include
	}
	return sel
}

func identityOf(v any) (identity, bool) {
	if v == nil {
		return identity{}, false
	}
	if rec, ok := v.(*orm.Record); ok && rec != nil && rec.Model != nil {
		if pk, found := rec.GetAttr("pk"); found && pk != nil {
			return identity{typ: reflect.TypeOf(rec), key: fmt.Sprintf("%s:%v", rec.Model.Label(), pk)}, true
		}
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map:
		if rv.IsNil() {
			return identity{}, false
		}
		return identity{typ: rv.Type(), ptr: rv.Pointer()}, true
	}
	return identity{}, false
}
