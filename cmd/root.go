package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/MimeLyc/scene-sub-translator/internal/config"
	"github.com/MimeLyc/scene-sub-translator/pkg/log"
)

var (
	configFlag   string
	envFileFlag  string
	logLevelFlag string

	fileLogger *log.FileLogger
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "scene-sub",
		Short: "Translate subtitles scene by scene with an LLM",
		Long: `scene-sub splits a subtitle file into scenes and batches by timing gaps,
translates each batch with the surrounding context and writes the result
next to the source file.`,
		SilenceUsage:      true,
		PersistentPreRunE: loadEnvFile,
		PersistentPostRun: func(*cobra.Command, []string) {
			if fileLogger != nil {
				_ = fileLogger.Close()
				fileLogger = nil
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&envFileFlag, "env-file", ".env", "Environment file loaded before the config")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(newTranslateCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newInspectCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// loadEnvFile reads the env file. A missing default file is not an error.
func loadEnvFile(cmd *cobra.Command, _ []string) error {
	if strings.TrimSpace(envFileFlag) == "" {
		return nil
	}
	err := godotenv.Load(envFileFlag)
	if err == nil {
		return nil
	}
	if errors.Is(err, os.ErrNotExist) && !cmd.Flags().Changed("env-file") {
		return nil
	}
	return fmt.Errorf("load env file %s: %w", envFileFlag, err)
}

// loadConfig builds the config from the environment, the saved runtime
// settings, the --config file and opts, in that order, and sets up logging.
func loadConfig(opts ...config.Option) (*config.Config, error) {
	all := []config.Option{}
	if settings, err := config.LoadRuntimeSettingsFile(config.RuntimeSettingsFilePath()); err == nil {
		all = append(all, config.WithRuntimeSettings(settings))
	}
	all = append(all, opts...)
	if logLevelFlag != "" {
		all = append(all, func(c *config.Config) { c.Log.Level = logLevelFlag })
	}

	var (
		cfg *config.Config
		err error
	)
	if configFlag != "" {
		cfg, err = config.LoadFile(configFlag, all...)
	} else {
		cfg, err = config.NewFromEnv(all...)
	}
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	if err := setupLogging(cfg.Log); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setupLogging(cfg config.LogConfig) error {
	level := log.ParseLevel(cfg.Level)
	if cfg.File == "" {
		log.InitLogger(level)
		return nil
	}
	fl, err := log.NewFileLogger(cfg.File, level)
	if err != nil {
		return err
	}
	fileLogger = fl
	log.SetLogger(fl.Logger)
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
