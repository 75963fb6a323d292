package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"

	"github.com/rendis/flowlanes/internal/codec"
	"github.com/rendis/flowlanes/internal/importer"
	"github.com/rendis/flowlanes/internal/logging"
	"github.com/rendis/flowlanes/internal/store"
	"github.com/rendis/flowlanes/internal/tracing"
)

// app is the state shared by every subcommand once the root pre-run has
// loaded the configuration.
type app struct {
	v          *viper.Viper
	configPath string

	cfg      Config
	logger   *slog.Logger
	fs       afs.Service
	codec    *codec.Codec
	importer *importer.Importer
}

func newRootCmd() *cobra.Command {
	a := &app{v: newViper()}

	cmd := &cobra.Command{
		Use:           "flowlanes",
		Short:         "Convert, inspect and render swim-lane process diagrams",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd.ErrOrStderr())
		},
	}

	pflags := cmd.PersistentFlags()
	pflags.StringVar(&a.configPath, "config", "", "settings file (default: ~/.flowlanes/settings.yaml)")
	pflags.String("db-path", "", "diagram database path")
	pflags.String("log-level", "", "log level: debug, info, warn, error")
	pflags.String("log-format", "", "log format: text, json")
	pflags.Bool("trace", false, "export OpenTelemetry spans to trace_file")
	for key, flag := range map[string]string{
		"db_path":    "db-path",
		"log_level":  "log-level",
		"log_format": "log-format",
		"trace":      "trace",
	} {
		_ = a.v.BindPFlag(key, pflags.Lookup(flag))
	}

	cmd.AddCommand(
		a.convertCmd(),
		a.renderCmd(),
		a.validateCmd(),
		a.findCmd(),
		a.queryCmd(),
		a.storeCmd(),
		a.serveCmd(),
		a.installCmd(),
		versionCmd(),
	)

	return cmd
}

func (a *app) init(stderr io.Writer) error {
	cfg, err := loadConfig(a.v, a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logger, err := logging.New(stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	a.logger = logger

	if cfg.Trace {
		if err := os.MkdirAll(filepath.Dir(cfg.TraceFile), 0o700); err != nil {
			return fmt.Errorf("create trace dir: %w", err)
		}
		if err := tracing.Init("flowlanes", version, cfg.TraceFile); err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
	}

	a.fs = afs.New()
	if a.codec, err = codec.New(codec.WithLogger(logger)); err != nil {
		return err
	}
	a.importer, err = importer.New(a.codec, importer.WithLogger(logger), importer.WithFS(a.fs))
	return err
}

// openStore opens and migrates the configured database. The caller closes it.
func (a *app) openStore(cmd *cobra.Command) (*store.LibSQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(a.cfg.DBPath), 0o700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	s, err := store.NewLibSQLStore("file:" + a.cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(cmd.Context()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// location turns a CLI argument into an afs URL. Plain paths are files;
// "-" is left alone for stdin and stdout.
func location(arg string) string {
	if arg == "-" || strings.Contains(arg, "://") {
		return arg
	}
	if abs, err := filepath.Abs(arg); err == nil {
		arg = abs
	}
	return url.Normalize(arg, file.Scheme)
}
