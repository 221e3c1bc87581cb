package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

// LoaderOptions describes how configuration should be discovered.
type LoaderOptions struct {
	ConfigPaths []string
	FileName    string
	EnvPrefix   string
}

// Load returns the merged configuration from files and environment
// variables.
func Load(opts LoaderOptions) (Config, error) {
	v := viper.New()

	name := opts.FileName
	if name == "" {
		name = "revbridge"
	}

	configFile := locateConfigFile(name, opts.ConfigPaths)
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(name)
	}

	prefix := opts.EnvPrefix
	if prefix == "" {
		prefix = "REVBRIDGE"
	}
	v.SetEnvPrefix(prefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AllowEmptyEnv(true)

	setDefaults(v)

	if configFile != "" {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg = expandEnvVars(cfg)
	return cfg, nil
}

// expandEnvVars expands ${VAR} and $VAR syntax in configuration strings.
func expandEnvVars(cfg Config) Config {
	cfg.Store.RepositoryURL = expandEnvString(cfg.Store.RepositoryURL)
	cfg.Store.WorkDir = expandEnvString(cfg.Store.WorkDir)
	cfg.Webrev.RepositoryURL = expandEnvString(cfg.Webrev.RepositoryURL)
	cfg.Webrev.BaseURL = expandEnvString(cfg.Webrev.BaseURL)
	cfg.Cache.Path = expandEnvString(cfg.Cache.Path)
	cfg.Scheduler.ScratchRoot = expandEnvString(cfg.Scheduler.ScratchRoot)
	cfg.Mail.SenderAddress = expandEnvString(cfg.Mail.SenderAddress)
	return cfg
}

// expandEnvString replaces ${VAR} or $VAR with environment variable values.
func expandEnvString(s string) string {
	if s == "" {
		return s
	}

	re := regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*)\}`)
	s = re.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match
	})

	re = regexp.MustCompile(`\$([A-Z_][A-Z0-9_]*)`)
	s = re.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[1:]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match
	})

	return s
}

func locateConfigFile(name string, paths []string) string {
	searchPaths := append([]string{}, paths...)
	searchPaths = append(searchPaths, ".")
	for _, dir := range searchPaths {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, name+".yaml")
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate
		}
	}
	return ""
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("scheduler.workers", 4)
	v.SetDefault("scheduler.period", "1m")
	v.SetDefault("scheduler.scratchRoot", filepath.Join(os.TempDir(), "revbridge"))

	v.SetDefault("store.ref", "master")
	v.SetDefault("store.fileName", "state.json")
	v.SetDefault("store.pushRetries", 3)

	v.SetDefault("webrev.ref", "master")
	v.SetDefault("webrev.largeBlobMax", 5*1024*1024)
	v.SetDefault("webrev.pushRetries", 3)

	v.SetDefault("mail.cooldown", "5m")
	v.SetDefault("mail.lookback", "336h")
	v.SetDefault("mail.contextLines", 4)
	v.SetDefault("mail.maxReplySize", 100_000)

	v.SetDefault("cache.path", filepath.Join(os.TempDir(), "revbridge-cache.db"))

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "human")
}
