package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mirror.env")
	require.NoError(t, os.WriteFile(path, []byte("ZEROCAT_BACKEND=http://from-file\nZEROCAT_TOKEN_40CODE=file-token\n"), 0o600))
	t.Setenv("ZEROCAT_TOKEN_40CODE", "env-token")

	env, err := LoadEnv(path)
	require.NoError(t, err)

	assert.Equal(t, "http://from-file", env.Lookup("ZEROCAT_BACKEND"))
	assert.Equal(t, "env-token", env.Lookup("ZEROCAT_TOKEN_40CODE"))
	assert.Empty(t, env.Lookup("ZEROCAT_UNSET_FOR_TEST"))
}

func TestLoadEnv_Missing(t *testing.T) {
	_, err := LoadEnv(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)

	t.Chdir(t.TempDir())
	env, err := LoadEnv("")
	require.NoError(t, err)
	assert.NotNil(t, env)
}

func TestLoadMirrorConfig(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ZEROCAT_BACKEND", "http://backend")
	t.Setenv("ZEROCAT_TOKEN_40CODE", "t40")

	cfg, err := LoadMirrorConfig(GlobalFlags{}, "40code")
	require.NoError(t, err)
	assert.Equal(t, "http://backend", cfg.Store.Endpoint)
	assert.Equal(t, "t40", cfg.Sources["40code"].Token)

	cfg, err = LoadMirrorConfig(GlobalFlags{APIBaseURL: "http://flag", AuthToken: "flag-token"}, "sharkpools")
	require.NoError(t, err)
	assert.Equal(t, "http://flag", cfg.Store.Endpoint)
	assert.Equal(t, "flag-token", cfg.Sources["sharkpools"].Token)
	assert.Equal(t, "t40", cfg.Sources["40code"].Token)
}

func TestLoadMirrorConfig_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mirror.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
version: "1"
store:
  endpoint: ${BACKEND_FOR_TEST}
sources:
  local:
    type: DIRECTORY
    path: ./exts
    token: ${LOCAL_TOKEN_FOR_TEST}
`), 0o600))
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("BACKEND_FOR_TEST=http://dotenv\nLOCAL_TOKEN_FOR_TEST=tok\n"), 0o600))

	cfg, err := LoadMirrorConfig(GlobalFlags{ConfigPath: path, EnvFile: envPath}, "local")
	require.NoError(t, err)
	assert.Equal(t, "http://dotenv", cfg.Store.Endpoint)
	assert.Equal(t, "tok", cfg.Sources["local"].Token)
	assert.Equal(t, []string{"*.js"}, cfg.Sources["local"].Include)
}
