// Package cliutil holds the cobra/viper plumbing shared by every service
// binary: logger construction, flag binding, config discovery and the
// init/version subcommands.
package cliutil

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ramiqadoumi/task-inbox/internal/version"
)

// ConfigDir is the per-user directory searched for <service>.yaml.
const ConfigDir = ".task-inbox"

// BuildLogger returns a JSON slog logger tagged with the service name.
func BuildLogger(level, service string) *slog.Logger {
	return newLogger(os.Stdout, level, service)
}

func newLogger(w io.Writer, level, service string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)})).
		With(slog.String("service", service))
}

// ParseLevel maps debug | info | warn | error onto slog levels; anything else is info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// BindFlag binds a pflag to a viper key and panics on a typo'd flag name.
func BindFlag(viperKey string, fs *pflag.FlagSet, flagName string) {
	if err := viper.BindPFlag(viperKey, fs.Lookup(flagName)); err != nil {
		panic(fmt.Sprintf("bindFlag %q → %q: %v", flagName, viperKey, err))
	}
}

// InitConfig returns a cobra.OnInitialize hook that reads *cfgFile, or
// <service>.yaml from ., ~/.task-inbox and /etc/task-inbox.
func InitConfig(cfgFile *string, service string) func() {
	return func() {
		if *cfgFile != "" {
			viper.SetConfigFile(*cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.SetConfigName(service)
			viper.SetConfigType("yaml")
			viper.AddConfigPath(".")
			viper.AddConfigPath(filepath.Join(home, ConfigDir))
			viper.AddConfigPath("/etc/task-inbox")
		}

		viper.AutomaticEnv()

		if err := viper.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				fmt.Fprintln(os.Stderr, "error reading config file:", err)
				os.Exit(1)
			}
		} else {
			fmt.Fprintln(os.Stderr, "config:", viper.ConfigFileUsed())
		}
	}
}

// RenderConfig encodes defaults as YAML under a short header.
func RenderConfig(service string, defaults any) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# task-inbox %s config\n# Priority: CLI flag > env > this file > default.\n\n", service)
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(defaults); err != nil {
		return nil, fmt.Errorf("encode %s defaults: %w", service, err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// NewInitCmd returns an "init" subcommand that writes defaults as YAML to
// --config or ~/.task-inbox/<service>.yaml.
func NewInitCmd(service string, cfgFile *string, defaults any) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Long: fmt.Sprintf(`Write default configuration for %s.

If --config is given the file is written to that path.
Otherwise it is written to ~/%s/%s.yaml.
Fails if the file already exists unless --force is passed.`, service, ConfigDir, service),
		RunE: func(cmd *cobra.Command, _ []string) error {
			dest := *cfgFile
			if dest == "" {
				home, err := os.UserHomeDir()
				if err != nil {
					return fmt.Errorf("home dir: %w", err)
				}
				dest = filepath.Join(home, ConfigDir, service+".yaml")
			}
			if err := WriteConfig(dest, service, defaults, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config written to %s\n", dest)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing config file")
	return cmd
}

// WriteConfig renders defaults to dest, refusing to overwrite unless force.
func WriteConfig(dest, service string, defaults any, force bool) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	if !force {
		if _, err := os.Stat(dest); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", dest)
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("stat %s: %w", dest, err)
		}
	}
	data, err := RenderConfig(service, defaults)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dest, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// NewVersionCmd prints build metadata for service.
func NewVersionCmd(service string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String(service))
		},
	}
}
