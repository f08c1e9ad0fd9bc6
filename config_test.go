package serializers

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(n int) *int { return &n }

func TestConfig_ValidateDefaults(t *testing.T) {
	var cfg Config
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "json", cfg.Format)
	require.NotNil(t, cfg.Indent)
	assert.Equal(t, 2, *cfg.Indent)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "serializers.db", cfg.Database)
	assert.Nil(t, cfg.Depth)
	assert.Equal(t, FormatJSON, cfg.OutputFormat())
}

func TestConfig_ValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{name: "format", cfg: Config{Format: "toml"}, want: "format"},
		{name: "negative indent", cfg: Config{Indent: intPtr(-1)}, want: "indent"},
		{name: "large indent", cfg: Config{Indent: intPtr(MaxIndent + 1)}, want: "indent"},
		{name: "depth", cfg: Config{Depth: intPtr(-2)}, want: "depth"},
		{name: "log level", cfg: Config{LogLevel: "loud"}, want: "log level"},
		{name: "log format", cfg: Config{LogFormat: "xml"}, want: "log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			require.Error(t, err)
			assert.True(t, IsConfigurationError(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestConfig_ValidateReportsEverything(t *testing.T) {
	cfg := Config{Format: "toml", LogLevel: "loud", Depth: intPtr(-5)}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "format")
	assert.Contains(t, err.Error(), "log level")
	assert.Contains(t, err.Error(), "depth")
}

func TestConfig_CallOptions(t *testing.T) {
	cfg := Config{Indent: intPtr(4), NaturalKeys: true, Depth: intPtr(1)}
	require.NoError(t, cfg.Validate())

	co, err := buildCallOptions(cfg.CallOptions())
	require.NoError(t, err)
	assert.True(t, co.indentSet)
	assert.Equal(t, 4, co.indent)
	assert.True(t, co.naturalKeys)
	assert.True(t, co.depthSet)
	assert.Equal(t, 1, co.depth)

	cfg.Depth = intPtr(-1)
	co, err = buildCallOptions(cfg.CallOptions())
	require.NoError(t, err)
	assert.True(t, co.unbounded)
}

func TestConfig_OutputFormat(t *testing.T) {
	cfg := Config{Format: "yml"}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, FormatYAML, cfg.OutputFormat())
}

func TestConfig_Logger(t *testing.T) {
	cfg := Config{LogLevel: "debug", LogFormat: "json"}
	require.NoError(t, cfg.Validate())

	var buf bytes.Buffer
	cfg.Logger(&buf, "dumpdata").Debug("hello")
	assert.Contains(t, buf.String(), `"msg":"hello"`)
	assert.Contains(t, buf.String(), `"component":"dumpdata"`)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv(EnvFormat, "yaml")
	t.Setenv(EnvIndent, "4")
	t.Setenv(EnvNaturalKeys, "true")
	t.Setenv(EnvDepth, "-1")
	t.Setenv(EnvLogLevel, "DEBUG")
	t.Setenv(EnvDatabase, "blog.db")
	t.Setenv(EnvCompress, "1")

	cfg, err := LoadConfigFromEnvironment()
	require.NoError(t, err)
	assert.Equal(t, "yaml", cfg.Format)
	assert.Equal(t, 4, *cfg.Indent)
	assert.True(t, cfg.NaturalKeys)
	assert.Equal(t, -1, *cfg.Depth)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "blog.db", cfg.Database)
	assert.True(t, cfg.Compress)
}

func TestLoadConfigFromEnvironment_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "indent", key: EnvIndent, value: "wide"},
		{name: "depth", key: EnvDepth, value: "deep"},
		{name: "natural keys", key: EnvNaturalKeys, value: "maybe"},
		{name: "compress", key: EnvCompress, value: "zstd"},
		{name: "format", key: EnvFormat, value: "toml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := LoadConfigFromEnvironment()
			require.Error(t, err)
			assert.True(t, IsConfigurationError(err))
		})
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "serializers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfig(t, "format: yaml\nindent: 4\nnatural_keys: true\nlog_level: debug\n")

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, "yaml", cfg.Format)
	assert.Equal(t, 4, *cfg.Indent)
	assert.True(t, cfg.NaturalKeys)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "serializers.db", cfg.Database)
}

func TestLoadConfigFile_EnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, "format: yaml\n")
	t.Setenv(EnvFormat, "cbor")

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, "cbor", cfg.Format)
}

func TestLoadConfigFile_Errors(t *testing.T) {
	t.Run("empty file", func(t *testing.T) {
		cfg, err := LoadConfigFile(writeConfig(t, ""))
		require.NoError(t, err)
		assert.Equal(t, "json", cfg.Format)
	})

	t.Run("unknown field", func(t *testing.T) {
		_, err := LoadConfigFile(writeConfig(t, "formt: yaml\n"))
		require.Error(t, err)
		assert.True(t, IsConfigurationError(err))
	})

	t.Run("invalid value", func(t *testing.T) {
		_, err := LoadConfigFile(writeConfig(t, "indent: 99\n"))
		require.Error(t, err)
		assert.True(t, IsConfigurationError(err))
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfigFile(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}
