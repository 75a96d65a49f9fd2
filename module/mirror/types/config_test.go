package types

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerocat/extension-mirror/util/common/errors"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func lookup(values map[string]string) LookupFunc {
	return func(key string) string { return values[key] }
}

func TestLoadConfig_YAML(t *testing.T) {
	path := writeConfig(t, "mirror.yaml", `
version: "1"
delay: 2s
store:
  endpoint: ${BACKEND}
  visibility: private
sources:
  40code:
    type: CATALOG
    prefix: 40code
    token: ${TOKEN}
    listURL: https://catalog.example/work/ext
    contentURL: https://catalog.example/ext
    select:
      authors: [TigerCoder]
`)

	cfg, err := LoadConfig(path, lookup(map[string]string{"BACKEND": "http://backend", "TOKEN": "t"}))
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.Delay)
	assert.Equal(t, "http://backend", cfg.Store.Endpoint)
	assert.Equal(t, VisibilityPrivate, cfg.Store.Visibility)
	assert.Equal(t, DefaultTimeout, cfg.Store.Timeout)
	assert.Equal(t, DefaultRetryMax, cfg.Store.RetryMax)

	src, err := cfg.Source("40code")
	require.NoError(t, err)
	assert.Equal(t, CATALOG, src.Type)
	assert.Equal(t, "40code", src.Label)
	assert.Equal(t, "t", src.Token)
	assert.Equal(t, []string{"TigerCoder"}, src.Select.Authors)
	assert.NoError(t, cfg.ValidateForSync("40code"))
}

func TestLoadConfig_TOML(t *testing.T) {
	path := writeConfig(t, "mirror.toml", `
version = "1"

[store]
endpoint = "http://backend"

[sources.sharkpools]
type = "DIRECTORY"
path = "SharkPools-Extensions"

[sources.sharkpools.select]
all = true
`)

	cfg, err := LoadConfig(path, nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultDelay, cfg.Delay)
	src := cfg.Sources["sharkpools"]
	assert.Equal(t, DIRECTORY, src.Type)
	assert.True(t, src.Select.All)
	assert.Equal(t, []string{"*.js"}, src.Include)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		field   string
	}{
		{name: "no sources", content: "version: \"1\"\n", field: "sources"},
		{name: "missing type", content: "sources:\n  a:\n    path: x\n", field: "sources.a.type"},
		{name: "unknown type", content: "sources:\n  a:\n    type: FTP\n", field: "sources.a.type"},
		{name: "catalog without list", content: "sources:\n  a:\n    type: CATALOG\n    contentURL: x\n", field: "sources.a.listURL"},
		{name: "directory without path", content: "sources:\n  a:\n    type: DIRECTORY\n", field: "sources.a.path"},
		{name: "bad visibility", content: "store:\n  visibility: team\nsources:\n  a:\n    type: DIRECTORY\n    path: x\n", field: "store.visibility"},
		{name: "future version", content: "version: \"2\"\nsources:\n  a:\n    type: DIRECTORY\n    path: x\n", field: "version"},
		{name: "malformed version", content: "version: one\nsources:\n  a:\n    type: DIRECTORY\n    path: x\n", field: "version"},
		{name: "author url without placeholder", content: "sources:\n  a:\n    type: CATALOG\n    listURL: x\n    contentURL: y\n    authorURL: https://forum.example/u\n", field: "sources.a.authorURL"},
		{name: "author url with two placeholders", content: "sources:\n  a:\n    type: CATALOG\n    listURL: x\n    contentURL: y\n    authorURL: https://forum.example/%s/%s\n", field: "sources.a.authorURL"},
		{name: "negative delay", content: "delay: -1s\nsources:\n  a:\n    type: DIRECTORY\n    path: x\n", field: "delay"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, "mirror.yaml", tt.content), nil)
			require.Error(t, err)
			var verr *errors.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.ErrorIs(t, err, errors.ErrInvalidArgument)
		})
	}
}

func TestLoadConfig_Version(t *testing.T) {
	for _, version := range []string{"1", "v1", "1.2", "v1.2.0"} {
		t.Run(version, func(t *testing.T) {
			cfg, err := LoadConfig(writeConfig(t, "mirror.yaml",
				"version: \""+version+"\"\nsources:\n  a:\n    type: DIRECTORY\n    path: x\n"), nil)
			require.NoError(t, err)
			assert.Equal(t, version, cfg.Version)
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.Error(t, err)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig(lookup(map[string]string{
		"ZEROCAT_BACKEND":         "http://backend",
		"ZEROCAT_TOKEN_SHARKPOOL": "sp",
	}))

	assert.Equal(t, []string{"40code", "sharkpools"}, cfg.SourceNames())
	assert.Equal(t, DefaultDelay, cfg.Delay)

	catalog := cfg.Sources["40code"]
	assert.Len(t, catalog.Select.Authors, 10)
	assert.False(t, catalog.Select.All)

	assert.NoError(t, cfg.ValidateForSync("sharkpools"))
	err := cfg.ValidateForSync("40code")
	var verr *errors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "sources.40code.token", verr.Field)

	_, err = cfg.Source("missing")
	assert.ErrorIs(t, err, ErrUnknownSource)
}
