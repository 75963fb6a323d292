package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config holds all flowlanes configuration.
// Priority: flags > env vars > settings.yaml > defaults.
type Config struct {
	DBPath          string `mapstructure:"db_path" yaml:"db_path"`
	LogLevel        string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat       string `mapstructure:"log_format" yaml:"log_format"`
	RenderFormat    string `mapstructure:"render_format" yaml:"render_format"`
	Trace           bool   `mapstructure:"trace" yaml:"trace"`
	TraceFile       string `mapstructure:"trace_file" yaml:"trace_file"`
	MermaidASCIIDir string `mapstructure:"mermaid_ascii_dir" yaml:"mermaid_ascii_dir"`
}

const envPrefix = "FLOWLANES"

func defaultConfig() Config {
	dir := flowlanesDir()
	return Config{
		DBPath:          filepath.Join(dir, "flowlanes.db"),
		LogLevel:        "info",
		LogFormat:       "text",
		RenderFormat:    "ascii",
		TraceFile:       filepath.Join(dir, "traces.jsonl"),
		MermaidASCIIDir: filepath.Join(dir, "bin"),
	}
}

func flowlanesDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".flowlanes"
	}
	return filepath.Join(home, ".flowlanes")
}

func settingsPath() string {
	return filepath.Join(flowlanesDir(), "settings.yaml")
}

// newViper returns a viper instance carrying the defaults and the
// FLOWLANES_ environment mapping.
func newViper() *viper.Viper {
	v := viper.New()
	d := defaultConfig()
	v.SetDefault("db_path", d.DBPath)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
	v.SetDefault("render_format", d.RenderFormat)
	v.SetDefault("trace", d.Trace)
	v.SetDefault("trace_file", d.TraceFile)
	v.SetDefault("mermaid_ascii_dir", d.MermaidASCIIDir)
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	return v
}

// loadConfig reads path, or the default settings file when path is empty.
// A missing default file is not an error; a missing explicit one is.
func loadConfig(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("settings")
		v.SetConfigType("yaml")
		v.AddConfigPath(flowlanesDir())
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}
