package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/kbukum/memexec/logger"
)

// FileSystem abstracts the file operations the loader needs.
type FileSystem interface {
	Exists(path string) bool
	ReadEnv(path string) (map[string]string, error)
	UserConfigDir() (string, error)
}

// RealFileSystem implements FileSystem on the host.
type RealFileSystem struct{}

func (RealFileSystem) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ReadEnv parses a .env file without touching the process environment.
// Spawned children inherit os.Environ, so loader input must not leak into it.
func (RealFileSystem) ReadEnv(path string) (map[string]string, error) {
	return godotenv.Read(path)
}

func (RealFileSystem) UserConfigDir() (string, error) { return os.UserConfigDir() }

// LoaderConfig holds dependencies and optional file overrides.
type LoaderConfig struct {
	FileSystem FileSystem
	ConfigFile string // explicit config file path
	EnvFile    string // explicit .env file path
	EnvPrefix  string // defaults to the upper-cased service name plus "_"
	Environ    func() []string
}

// LoaderOption is a functional option for LoadConfig.
type LoaderOption func(*LoaderConfig)

func WithFileSystem(fs FileSystem) LoaderOption {
	return func(lc *LoaderConfig) { lc.FileSystem = fs }
}

func WithConfigFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.ConfigFile = path }
}

func WithEnvFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.EnvFile = path }
}

// WithEnvPrefix sets the prefix environment overrides must carry.
func WithEnvPrefix(prefix string) LoaderOption {
	return func(lc *LoaderConfig) { lc.EnvPrefix = prefix }
}

// WithEnviron replaces os.Environ as the source of overrides.
func WithEnviron(environ func() []string) LoaderOption {
	return func(lc *LoaderConfig) { lc.Environ = environ }
}

// ResolvedFiles are the files LoadConfig reads. Empty means none found.
type ResolvedFiles struct {
	ConfigFile string
	EnvFile    string
}

// ResolveFiles keeps explicit paths and otherwise searches, in order,
// ./<name>.yml, ./<name>.yaml, ./config/config.yml, ./config.yml and
// <user config dir>/<name>/config.y(a)ml for the config file, then
// ./.env.<name> and ./.env for the env file.
func ResolveFiles(fs FileSystem, serviceName string, lc LoaderConfig) ResolvedFiles {
	files := ResolvedFiles{ConfigFile: lc.ConfigFile, EnvFile: lc.EnvFile}
	if files.ConfigFile == "" {
		candidates := []string{
			"./" + serviceName + ".yml",
			"./" + serviceName + ".yaml",
			"./config/config.yml",
			"./config.yml",
		}
		if dir, err := fs.UserConfigDir(); err == nil && dir != "" {
			candidates = append(candidates,
				filepath.Join(dir, serviceName, "config.yml"),
				filepath.Join(dir, serviceName, "config.yaml"),
			)
		}
		files.ConfigFile = firstExisting(fs, candidates)
	}
	if files.EnvFile == "" {
		files.EnvFile = firstExisting(fs, []string{"./.env." + serviceName, "./.env"})
	}
	return files
}

func firstExisting(fs FileSystem, paths []string) string {
	for _, path := range paths {
		if fs.Exists(path) {
			return path
		}
	}
	return ""
}

// LoadConfig loads configuration for a service into cfg, a pointer to a
// struct with mapstructure tags. Precedence from lowest to highest: YAML
// file, .env file, process environment. Only variables carrying the prefix
// and naming a field of cfg are used: MEMRUN_LAUNCHER_RETRY_MAX_ATTEMPTS
// sets launcher.retry.max_attempts.
func LoadConfig(serviceName string, cfg any, opts ...LoaderOption) error {
	lc := LoaderConfig{
		FileSystem: RealFileSystem{},
		EnvPrefix:  envPrefix(serviceName),
		Environ:    os.Environ,
	}
	for _, opt := range opts {
		opt(&lc)
	}

	log := logger.Get("config")
	files := ResolveFiles(lc.FileSystem, serviceName, lc)
	v := viper.New()

	if files.ConfigFile != "" && lc.FileSystem.Exists(files.ConfigFile) {
		v.SetConfigFile(files.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file %s: %w", files.ConfigFile, err)
		}
		log.Debug("config file loaded", logger.Fields("path", files.ConfigFile))
	}

	keys := envKeys(cfg)
	apply := func(name, value, source string) {
		rest, ok := strings.CutPrefix(name, lc.EnvPrefix)
		if !ok || rest == "" {
			return
		}
		key, known := keys[rest]
		if !known {
			log.Debug("ignoring unknown config variable", logger.Fields("name", name, "source", source))
			return
		}
		v.Set(key, value)
	}

	if files.EnvFile != "" && lc.FileSystem.Exists(files.EnvFile) {
		vars, err := lc.FileSystem.ReadEnv(files.EnvFile)
		if err != nil {
			log.Warn("failed to read env file", logger.MergeWithError(logger.Fields("path", files.EnvFile), err))
		}
		for name, value := range vars {
			apply(name, value, files.EnvFile)
		}
	}
	for _, kv := range lc.Environ() {
		if name, value, ok := strings.Cut(kv, "="); ok {
			apply(name, value, "environment")
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("decoding %s config: %w", serviceName, err)
	}
	return nil
}

// envPrefix derives MEMRUN_ from memrun and MY_TOOL_ from my-tool.
func envPrefix(serviceName string) string {
	return strings.ToUpper(strings.ReplaceAll(serviceName, "-", "_")) + "_"
}

var timeType = reflect.TypeFor[time.Time]()

// envKeys maps the variable suffix of every leaf field of cfg to its dotted
// config key: LAUNCHER_GRACE_PERIOD -> launcher.grace_period.
func envKeys(cfg any) map[string]string {
	keys := make(map[string]string)
	t := reflect.TypeOf(cfg)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t != nil && t.Kind() == reflect.Struct {
		collectKeys(t, "", keys)
	}
	return keys
}

func collectKeys(t reflect.Type, prefix string, keys map[string]string) {
	for i := range t.NumField() {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, opts, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		if name == "-" {
			continue
		}
		if name == "" {
			name = strings.ToLower(f.Name)
		}
		key := name
		if strings.Contains(opts, "squash") {
			key = ""
		}
		if prefix != "" {
			key = strings.Trim(prefix+"."+key, ".")
		}

		ft := f.Type
		for ft.Kind() == reflect.Pointer {
			ft = ft.Elem()
		}
		if ft.Kind() == reflect.Struct && ft != timeType {
			collectKeys(ft, key, keys)
			continue
		}
		keys[strings.ToUpper(strings.ReplaceAll(key, ".", "_"))] = key
	}
}
