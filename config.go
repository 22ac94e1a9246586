package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	koanfjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Default configuration values.
const (
	defaultServerURL = "https://codeforces.com"
	// Copied from GNOME Epiphany-3.32.4.
	defaultUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebkit/537.36 (KHTML, like Gecko) Chrome/74.0.3729.169 Safari/537.36"
)

// configFileName is looked up in the user config directory and in the
// working directory.
const configFileName = "cftool.json"

// appConfig holds the merged configuration. Later layers win: baked-in
// defaults, the user config directory, the working directory, an
// explicit --config file, CFTOOL_* environment variables, and finally
// the command line.
type appConfig struct {
	ServerURL   string `json:"server_url"`
	Identy      string `json:"identy"`
	ContestPath string `json:"contest_path"`
	UserAgent   string `json:"user_agent"`
	PreferCXX   string `json:"prefer_cxx"`
	PreferPy    string `json:"prefer_py"`
	PreferRust  string `json:"prefer_rust"`
	CookieFile  string `json:"cookie_file"`
	RetryLimit  int    `json:"retry_limit"`
	NoCookie    bool   `json:"no_cookie"`
}

func defaultConfigMap() map[string]any {
	return map[string]any{
		"server_url":  defaultServerURL,
		"user_agent":  defaultUA,
		"prefer_cxx":  "c++17-64",
		"prefer_py":   "py3",
		"prefer_rust": "2021",
		"retry_limit": 3,
	}
}

// loadConfig merges the configuration layers up to and including the
// environment. Command line overrides are applied by the caller.
func loadConfig(explicit string, log *logger) (appConfig, error) {
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaultConfigMap(), "."), nil); err != nil {
		return appConfig{}, fmt.Errorf("can not load the default config: %w", err)
	}

	if dir, err := os.UserConfigDir(); err == nil {
		p := filepath.Join(dir, "cftool", configFileName)
		log.debugf("trying to read user config file %s", p)
		if err := loadConfigFile(k, p); err != nil {
			return appConfig{}, err
		}
	}

	log.debug("trying to read config file cftool.json in the working directory")
	if err := loadConfigFile(k, configFileName); err != nil {
		return appConfig{}, err
	}

	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return appConfig{}, fmt.Errorf("user config file %s does not exist", explicit)
			}
			return appConfig{}, fmt.Errorf("can not read config file %s: %w", explicit, err)
		}
		if err := loadConfigFile(k, explicit); err != nil {
			return appConfig{}, err
		}
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: "CFTOOL_",
		TransformFunc: func(key, value string) (string, any) {
			return strings.ToLower(strings.TrimPrefix(key, "CFTOOL_")), value
		},
	}), nil); err != nil {
		return appConfig{}, fmt.Errorf("can not read the environment: %w", err)
	}

	var cfg appConfig
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return appConfig{}, fmt.Errorf("can not unmarshal config: %w", err)
	}
	return cfg, nil
}

// loadConfigFile merges one JSON config file into k. A missing file is
// not an error; the layered lookup probes several well-known places.
func loadConfigFile(k *koanf.Koanf, path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("can not stat config file %s: %w", path, err)
	}
	if err := k.Load(file.Provider(path), koanfjson.Parser()); err != nil {
		return fmt.Errorf("can not parse config file %s: %w", path, err)
	}
	return nil
}
