package main

import (
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"push-dispatch-backend/config"
)

type rootOptions struct {
	configPath string
	envFile    string
	verbose    bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "pushd",
		Short:         "Push endpoint registry and notification dispatcher",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(opts.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return errors.Wrapf(err, "load %s", opts.envFile)
			}
			return nil
		},
	}

	defaultConfig := os.Getenv("CONFIG_PATH")
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", defaultConfig, "YAML config file (env CONFIG_PATH); environment variables override it")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the configuration")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log at debug level")

	cmd.AddCommand(
		newServeCommand(opts),
		newSendCommand(opts),
		newPruneCommand(opts),
		newVAPIDKeysCommand(),
	)
	return cmd
}

// loadConfig reads and verifies the configuration and sets up logging.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, errors.Wrap(err, "load configuration")
	}
	setupLogging(cfg.Log, o.verbose)

	if err := cfg.Verify(); err != nil {
		return nil, err
	}
	logrus.WithField("path", o.configPath).Debug("configuration loaded")
	return cfg, nil
}

func setupLogging(cfg config.LogConfig, verbose bool) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		logrus.WithField("level", cfg.Level).Warn("unknown log level; using info")
		level = logrus.InfoLevel
	}
	if verbose {
		level = logrus.DebugLevel
	}
	logrus.SetLevel(level)

	if strings.EqualFold(cfg.Format, "json") {
		logrus.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})
		return
	}
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339Nano,
	})
}
