package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/grovetools/modelcore/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// isolate points the global config lookup at an empty directory.
func isolate(t *testing.T) string {
	t.Helper()
	xdg := t.TempDir()
	t.Setenv("MODELCORE_HOME", "")
	t.Setenv("XDG_CONFIG_HOME", xdg)
	return xdg
}

func TestLoadFromBytesDefaults(t *testing.T) {
	cfg, err := LoadFromBytes([]byte(``), FormatYAML)
	require.NoError(t, err)

	assert.Equal(t, "1.0", cfg.Version)
	assert.Equal(t, 200*time.Millisecond, cfg.ParsedPollInterval())
	assert.Equal(t, ReclaimAsync, cfg.Reclaim)
	assert.False(t, cfg.SyncReclaim())
	assert.Equal(t, ".", cfg.Watch.Dir)
	assert.Equal(t, 100*time.Millisecond, cfg.ParsedDebounce())
}

func TestLoadFromBytesYAML(t *testing.T) {
	t.Setenv("INBOX_DIR", "/var/mail/inbox")
	cfg, err := LoadFromBytes([]byte(`
version: "1.0"
poll_interval: 50ms
reclaim: sync
watch:
  dir: ${INBOX_DIR}
  ignore: ["*.tmp", ".git"]
  debounce: ${DEBOUNCE:-1s}
logging:
  level: debug
  format:
    preset: json
`), FormatYAML)
	require.NoError(t, err)

	assert.Equal(t, 50*time.Millisecond, cfg.ParsedPollInterval())
	assert.True(t, cfg.SyncReclaim())
	assert.Equal(t, "/var/mail/inbox", cfg.Watch.Dir)
	assert.Equal(t, []string{"*.tmp", ".git"}, cfg.Watch.Ignore)
	assert.Equal(t, time.Second, cfg.ParsedDebounce())

	logCfg, err := cfg.Logging()
	require.NoError(t, err)
	assert.Equal(t, "debug", logCfg.Level)
	assert.Equal(t, "json", logCfg.Format.Preset)
}

func TestLoadFromBytesTOML(t *testing.T) {
	cfg, err := LoadFromBytes([]byte(`
poll_interval = "10ms"

[watch]
dir = "/tmp/inbox"
ignore = ["*.swp"]

[logging]
level = "trace"
report_caller = true
`), FormatTOML)
	require.NoError(t, err)

	assert.Equal(t, 10*time.Millisecond, cfg.ParsedPollInterval())
	assert.Equal(t, "/tmp/inbox", cfg.Watch.Dir)
	assert.Equal(t, []string{"*.swp"}, cfg.Watch.Ignore)

	logCfg, err := cfg.Logging()
	require.NoError(t, err)
	assert.Equal(t, "trace", logCfg.Level)
	assert.True(t, logCfg.ReportCaller)
}

func TestInvalidConfigurations(t *testing.T) {
	cases := map[string]string{
		"unknown reclaim mode": "reclaim: later\n",
		"bad duration":         "poll_interval: soon\n",
		"negative duration":    "poll_interval: -1s\n",
		"zero debounce":        "watch:\n  debounce: 0s\n",
		"bad ignore pattern":   "watch:\n  ignore: [\"[\"]\n",
		"ignore is not a list": "watch:\n  ignore: \"*.tmp\"\n",
		"malformed yaml":       "watch: [\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadFromBytes([]byte(content), FormatYAML)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrCodeConfigInvalid), "got %v", err)
		})
	}
}

func TestUnmarshalExtensionMissingKeyIsNotAnError(t *testing.T) {
	cfg, err := LoadFromBytes([]byte("monitoring:\n  interval: 30\n"), FormatYAML)
	require.NoError(t, err)

	var target struct {
		Interval int `yaml:"interval"`
	}
	require.NoError(t, cfg.UnmarshalExtension("monitoring", &target))
	assert.Equal(t, 30, target.Interval)

	var untouched struct {
		Enabled bool `yaml:"enabled"`
	}
	require.NoError(t, cfg.UnmarshalExtension("unknown", &untouched))
	assert.False(t, untouched.Enabled)
}

func TestFindConfigFileWalksUp(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "modelcore.toml"), "reclaim = \"sync\"\n")
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	path, err := FindConfigFile(nested)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "modelcore.toml"), path)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.SyncReclaim())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "modelcore.yml"))
	assert.True(t, errors.Is(err, errors.ErrCodeConfigNotFound))
}

func TestLoadFromMergesLayers(t *testing.T) {
	xdg := isolate(t)
	writeFile(t, filepath.Join(xdg, "modelcore", "modelcore.yml"), `
poll_interval: 1s
watch:
  ignore: ["*.tmp"]
logging:
  level: warn
  report_caller: true
`)

	project := t.TempDir()
	writeFile(t, filepath.Join(project, "modelcore.yml"), `
poll_interval: 300ms
watch:
  dir: /srv/inbox
  ignore: ["*.bak"]
logging:
  level: debug
`)
	writeFile(t, filepath.Join(project, "modelcore.override.yml"), `
reclaim: sync
`)

	cfg, err := LoadFrom(project)
	require.NoError(t, err)

	assert.Equal(t, 300*time.Millisecond, cfg.ParsedPollInterval())
	assert.True(t, cfg.SyncReclaim())
	assert.Equal(t, "/srv/inbox", cfg.Watch.Dir)
	assert.Equal(t, []string{"*.tmp", "*.bak"}, cfg.Watch.Ignore)

	logCfg, err := cfg.Logging()
	require.NoError(t, err)
	assert.Equal(t, "debug", logCfg.Level)
	assert.True(t, logCfg.ReportCaller, "sections merge key by key")
}

func TestLoadFromWithoutAnyFileUsesDefaults(t *testing.T) {
	isolate(t)
	cfg, err := LoadFrom(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 200*time.Millisecond, cfg.ParsedPollInterval())
}

func TestLoadFromRejectsBrokenProjectConfig(t *testing.T) {
	isolate(t)
	project := t.TempDir()
	writeFile(t, filepath.Join(project, "modelcore.yml"), "reclaim: whenever\n")

	_, err := LoadFrom(project)
	assert.True(t, errors.Is(err, errors.ErrCodeConfigInvalid))
}

func TestGenerateSchema(t *testing.T) {
	data, err := GenerateSchema()
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &doc))
	props, ok := doc["properties"].(map[string]interface{})
	require.True(t, ok)
	for _, key := range []string{"version", "poll_interval", "reclaim", "watch"} {
		assert.Contains(t, props, key)
	}
	assert.NotContains(t, props, "Extensions")
	assert.Nil(t, doc["required"])
}
