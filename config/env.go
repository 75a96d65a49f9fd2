package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/zerocat/extension-mirror/module/mirror/types"
)

// DefaultEnvFile is read when present and no other file is named.
const DefaultEnvFile = ".env"

// Env resolves ${VAR} references from the process environment, falling back
// to a dotenv file.
type Env struct {
	v *viper.Viper
}

// LoadEnv reads the dotenv file at path. A missing file is only an error
// when it was asked for explicitly.
func LoadEnv(path string) (*Env, error) {
	v := viper.New()
	v.AutomaticEnv()

	file := path
	if file == "" {
		file = DefaultEnvFile
	}
	v.SetConfigFile(file)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		if path == "" && errors.Is(err, fs.ErrNotExist) {
			log.Debug().Str("file", file).Msg("No env file found")
			return &Env{v: v}, nil
		}
		return nil, fmt.Errorf("failed to read env file %s: %w", file, err)
	}
	log.Debug().Str("file", file).Msg("Loaded env file")
	return &Env{v: v}, nil
}

// Lookup returns the value of key, or an empty string.
func (e *Env) Lookup(key string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return e.v.GetString(key)
}

// LoadMirrorConfig builds the run configuration from the global flags: the
// file named by --config, or the built-in defaults, with --api-url and
// --token applied on top.
func LoadMirrorConfig(flags GlobalFlags, sourceName string) (*types.Config, error) {
	env, err := LoadEnv(flags.EnvFile)
	if err != nil {
		return nil, err
	}

	var cfg *types.Config
	if flags.ConfigPath != "" {
		cfg, err = types.LoadConfig(flags.ConfigPath, env.Lookup)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = types.DefaultConfig(env.Lookup)
	}

	if flags.APIBaseURL != "" {
		cfg.Store.Endpoint = flags.APIBaseURL
	}
	if flags.AuthToken != "" && sourceName != "" {
		if src, ok := cfg.Sources[sourceName]; ok {
			src.Token = flags.AuthToken
			cfg.Sources[sourceName] = src
		}
	}
	return cfg, nil
}
