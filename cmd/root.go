package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pagopa/interop-platform-state/internal/buildinfo"
	"github.com/pagopa/interop-platform-state/internal/logging"
)

// global flags
var (
	userConfig string
	f          = NewFactory()
)

const (
	LogLevelKey   = logging.LevelKey
	LogFormatKey  = logging.FormatKey
	LogNoColorKey = logging.NoColorKey

	ServerAddrKey = "server"
	ConfigPathKey = "config"
	AdminTokenKey = "token"
)

var rootCmd = &cobra.Command{
	Use:   "platform-state",
	Short: fmt.Sprintf("Interop platform state (%s)", buildinfo.Current().Short()),
	Long: `Projects agreement, catalog, purpose and authorization events into the
Platform States and Token Generation States tables, and issues access
tokens for client assertions validated against them.`,
	Version: buildinfo.Current().Short(),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configPath, configErr := initConfig()
		logging.Init(nil)
		if configErr != nil { // handle error after logging is initialized
			return configErr
		}
		if configPath != "" {
			log.Debug().Msgf("using user config file: %s", configPath)
		}
		if f.RemoteAddr == "" {
			f.RemoteAddr = viper.GetString(ServerAddrKey)
		}
		if f.ConfigPath == "" {
			f.ConfigPath = viper.GetString(ConfigPathKey)
		}
		return nil
	},
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		var quiet BeQuietError
		if !errors.As(err, &quiet) {
			log.Error().Err(err).Msg("execution failed")
		}
		os.Exit(1)
	}
}

func init() {
	// setup pre-flag logger
	logging.InitDefault()

	rootCmd.PersistentFlags().StringVar(&userConfig, "user-config", "",
		"User configuration file for default values (default is $HOME/.platform-state.yaml)")

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	_ = viper.BindPFlag(LogLevelKey, rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.PersistentFlags().String("log-format", logging.FormatConsole, "Log format (console, json)")
	_ = viper.BindPFlag(LogFormatKey, rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.PersistentFlags().Bool("no-color", false, "Disable color output")
	_ = viper.BindPFlag(LogNoColorKey, rootCmd.PersistentFlags().Lookup("no-color"))

	rootCmd.PersistentFlags().StringVar(&f.RemoteAddr, "server", "", "Address of a remote platform-state server")
	_ = viper.BindPFlag(ServerAddrKey, rootCmd.PersistentFlags().Lookup("server"))

	f.bindConfigFlag(rootCmd.PersistentFlags())
	_ = viper.BindPFlag(ConfigPathKey, rootCmd.PersistentFlags().Lookup("config"))

	viper.SetEnvPrefix("PLATFORMSTATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(
		".", "_",
		"-", "_",
	))

	viper.AutomaticEnv()

	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
}

func initConfig() (string, error) {
	// reads in config file and ENV variables if set.
	if userConfig != "" {
		viper.SetConfigFile(userConfig)
	} else {
		// search order: current dir, $HOME, XDG config
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}

		config, err := os.UserConfigDir()
		if err == nil {
			viper.AddConfigPath(config + "/platform-state")
		}

		viper.SetConfigType("yaml")
		viper.SetConfigName(".platform-state")
	}

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		var notFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &notFoundError) {
			return "", err
		}
	} else {
		return viper.ConfigFileUsed(), nil
	}

	return "", nil
}
