package serializers

// Field sources
const (
	// SourceSelf makes a field read the whole object being converted instead
	// of one of its attributes.
	SourceSelf = "*"
)

// Environment variable names
const (
	// EnvFormat is the default output format, e.g. "json".
	EnvFormat = "SERIALIZERS_FORMAT"

	// EnvIndent is the number of spaces renderers indent nested output with.
	EnvIndent = "SERIALIZERS_INDENT"

	// EnvNaturalKeys switches fixture relations to natural keys ("true"/"false").
	EnvNaturalKeys = "SERIALIZERS_NATURAL_KEYS"

	// EnvDepth limits nested relation traversal. Empty or "-1" means unbounded.
	EnvDepth = "SERIALIZERS_DEPTH"

	// EnvLogLevel is one of debug, info, warn, error.
	EnvLogLevel = "SERIALIZERS_LOG_LEVEL"

	// EnvLogFormat is "json" or "text".
	EnvLogFormat = "SERIALIZERS_LOG_FORMAT"

	// EnvDatabase is the path of the SQLite database used by dumpdata and
	// loaddata.
	EnvDatabase = "SERIALIZERS_DATABASE"

	// EnvCompress enables zstd compression of file output.
	EnvCompress = "SERIALIZERS_COMPRESS"
)

// Default values
const (
	DefaultFormat    = "json"
	DefaultIndent    = 2
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
	DefaultDatabase  = "serializers.db"
)

// Limits
const (
	// MaxIndent caps the indent a configuration may request.
	MaxIndent = 16
)
