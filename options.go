package serializers

import (
	"log/slog"
	"maps"
	"slices"

	"github.com/hengadev/serializers/internal/codec"
	"github.com/hengadev/serializers/internal/monitoring"
	"github.com/hengadev/serializers/primitive"
)

// Option configures a Serializer at declaration time.
type Option func(s *Serializer) error

// Factory builds the reverted object from the attributes of one mapping.
// class is the value resolved for the mapping, possibly nil.
type Factory func(t *Traversal, class any, attrs map[string]any) (any, error)

// ClassResolver picks the class of a mapping being reverted.
type ClassResolver func(t *Traversal, data *primitive.Map) (any, error)

// FlatFieldFactory returns the field used in place of the nested serializer
// declared as name on obj, once depth is exhausted or obj's value is already
// being converted. The serializer binds a shallow copy of the returned field,
// so a factory may return the same instance on every call.
type FlatFieldFactory func(t *Traversal, obj any, name string, nested *Serializer) Field

// KeyFunc returns the output key of a field.
type KeyFunc func(obj any, name string, field Field) string

// Loader replaces a value by the object to convert, for example to resolve a
// reference. It is called for every non-scalar value before conversion.
type Loader func(t *Traversal, value any) (any, error)

// ObjectValidator checks the reverted attributes of a whole mapping.
type ObjectValidator func(attrs map[string]any) error

type selection struct {
	fields    []string
	fieldsSet bool
	exclude   []string
	include   []string
}

// WithFields restricts the output to exactly names, in that order.
func WithFields(names ...string) Option {
	return func(s *Serializer) error {
		s.selection.fields = slices.Clone(names)
		s.selection.fieldsSet = true
		return nil
	}
}

// WithExclude drops names from the output.
func WithExclude(names ...string) Option {
	return func(s *Serializer) error {
		s.selection.exclude = slices.Clone(names)
		return nil
	}
}

// WithInclude adds attributes that are neither declared nor discovered.
func WithInclude(names ...string) Option {
	return func(s *Serializer) error {
		s.selection.include = slices.Clone(names)
		return nil
	}
}

// WithDepth sets how many levels of nested serializers are expanded before
// they are flattened.
func WithDepth(depth int) Option {
	return func(s *Serializer) error {
		if depth < 0 {
			return NewConfigurationError("depth must be non-negative, got %d", depth)
		}
		s.depth = depth
		s.depthSet = true
		s.flatByDefault = false
		return nil
	}
}

// WithUnboundedDepth expands nested serializers at any depth. Cycles are
// still flattened.
func WithUnboundedDepth() Option {
	return func(s *Serializer) error {
		s.depth = 0
		s.depthSet = false
		s.flatByDefault = false
		return nil
	}
}

// WithDefaultFields discovers fields with provider in addition to the
// declared ones.
func WithDefaultFields(provider DefaultFieldProvider) Option {
	return func(s *Serializer) error {
		if provider == nil {
			return NewConfigurationError("default field provider is nil")
		}
		s.provider = provider
		return nil
	}
}

// WithoutDefaultFields keeps only the declared fields.
func WithoutDefaultFields() Option {
	return func(s *Serializer) error {
		s.provider = nil
		return nil
	}
}

// WithFactory builds objects from reverted attributes.
func WithFactory(factory Factory) Option {
	return func(s *Serializer) error {
		s.factory = factory
		return nil
	}
}

// WithClass fixes the class passed to the factory and the provider.
func WithClass(class any) Option {
	return func(s *Serializer) error {
		s.class = class
		return nil
	}
}

// WithClassResolver resolves the class from each mapping being reverted.
func WithClassResolver(resolver ClassResolver) Option {
	return func(s *Serializer) error {
		s.classResolver = resolver
		return nil
	}
}

// WithValidator checks the reverted attributes once every field succeeded.
func WithValidator(validator ObjectValidator) Option {
	return func(s *Serializer) error {
		s.validator = validator
		return nil
	}
}

// WithFlatField sets how nested serializers are flattened.
func WithFlatField(factory FlatFieldFactory) Option {
	return func(s *Serializer) error {
		s.flatFactory = factory
		return nil
	}
}

// WithKeyFunc sets how output keys are derived from fields.
func WithKeyFunc(fn KeyFunc) Option {
	return func(s *Serializer) error {
		s.keyFunc = fn
		return nil
	}
}

// WithLoader resolves values before they are converted.
func WithLoader(loader Loader) Option {
	return func(s *Serializer) error {
		s.loader = loader
		return nil
	}
}

// WithFieldOptions configures the serializer as a field of its parent, for
// example Source(SourceSelf) or Label("author").
func WithFieldOptions(opts ...FieldOption) Option {
	return func(s *Serializer) error {
		s.BaseField.apply(opts)
		return nil
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Serializer) error {
		s.logger = logger
		return nil
	}
}

func WithObservabilityHook(hook monitoring.ObservabilityHook) Option {
	return func(s *Serializer) error {
		s.hook = hook
		return nil
	}
}

func WithMetricsCollector(collector monitoring.MetricsCollector) Option {
	return func(s *Serializer) error {
		s.metrics = collector
		return nil
	}
}

// WithFormat sets the format Serialize and Deserialize use when none is
// given.
func WithFormat(format string) Option {
	return func(s *Serializer) error {
		f, err := codec.ParseFormat(format)
		if err != nil {
			return err
		}
		s.format = f
		return nil
	}
}

// WithCodecs replaces the registry of renderers and parsers.
func WithCodecs(registry *codec.Registry) Option {
	return func(s *Serializer) error {
		if registry == nil {
			return NewConfigurationError("codec registry is nil")
		}
		s.codecs = registry
		return nil
	}
}

// CallOption overrides a declared option for one call. The serializer itself
// is never modified.
type CallOption func(o *callOptions)

type callOptions struct {
	fields     []string
	fieldsSet  bool
	exclude    []string
	excludeSet bool
	include    []string
	includeSet bool

	depth     int
	depthSet  bool
	unbounded bool

	naturalKeys bool
	value       any

	indent    int
	indentSet bool
	extra     map[string]any
}

// Fields restricts the output of the called serializer to exactly names.
func Fields(names ...string) CallOption {
	return func(o *callOptions) {
		o.fields = slices.Clone(names)
		o.fieldsSet = true
	}
}

// Exclude drops names from the output of the called serializer.
func Exclude(names ...string) CallOption {
	return func(o *callOptions) {
		o.exclude = slices.Clone(names)
		o.excludeSet = true
	}
}

// Include adds attributes to the output of the called serializer.
func Include(names ...string) CallOption {
	return func(o *callOptions) {
		o.include = slices.Clone(names)
		o.includeSet = true
	}
}

// Depth overrides the declared depth.
func Depth(depth int) CallOption {
	return func(o *callOptions) {
		o.depth = depth
		o.depthSet = true
		o.unbounded = false
	}
}

// UnboundedDepth expands nested serializers at any depth for this call.
func UnboundedDepth() CallOption {
	return func(o *callOptions) {
		o.depth = 0
		o.depthSet = true
		o.unbounded = true
	}
}

// NaturalKeys makes relation fields that support it use natural keys.
func NaturalKeys(enabled bool) CallOption {
	return func(o *callOptions) { o.naturalKeys = enabled }
}

// ContextValue passes an opaque value fields can read with Traversal.Value.
func ContextValue(value any) CallOption {
	return func(o *callOptions) { o.value = value }
}

// Indent sets the renderer indentation.
func Indent(n int) CallOption {
	return func(o *callOptions) {
		o.indent = n
		o.indentSet = true
	}
}

// RenderOption passes a format-specific setting to the renderer.
func RenderOption(name string, value any) CallOption {
	return func(o *callOptions) {
		if o.extra == nil {
			o.extra = make(map[string]any)
		}
		o.extra[name] = value
	}
}

func buildCallOptions(opts []CallOption) (callOptions, error) {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.depthSet && o.depth < 0 {
		return o, NewConfigurationError("depth must be non-negative, got %d", o.depth)
	}
	if o.indentSet && (o.indent < 0 || o.indent > MaxIndent) {
		return o, NewConfigurationError("indent must be between 0 and %d, got %d", MaxIndent, o.indent)
	}
	return o, nil
}

func (o callOptions) renderOptions() codec.Options {
	return codec.Options{Indent: o.indent, Extra: maps.Clone(o.extra)}
}
