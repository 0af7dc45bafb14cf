package app

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/autopeer-io/rcbridge/pkg/log"
)

const (
	configFlagName = "config"

	// EnvPrefix prefixes environment variables overriding options, e.g.
	// RCBRIDGE_HUB_ADDRESS for --hub.address.
	EnvPrefix = "RCBRIDGE"
)

var cfgFile string

// addConfigFlag registers --config and arranges for the config file and the
// environment to be read before the command runs.
func addConfigFlag(basename string, fs *pflag.FlagSet) {
	fs.StringVarP(&cfgFile, configFlagName, "c", cfgFile, "Read configuration from the specified file; supports JSON, TOML, YAML, HCL.")

	viper.AutomaticEnv()
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	cobra.OnInitialize(func() {
		if err := loadConfig(cfgFile, basename); err != nil {
			log.Error(err, "Failed to read configuration file", "file", cfgFile)
			os.Exit(1)
		}
		if viper.ConfigFileUsed() != "" {
			watchConfig()
		}
	})
}

// loadConfig reads file, or searches the default locations for
// <basename>.yaml when file is empty. A missing default file is not an error.
func loadConfig(file, basename string) error {
	if file != "" {
		viper.SetConfigFile(file)
	} else {
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, "."+basename))
		}
		viper.AddConfigPath(filepath.Join("/etc", basename))
		viper.SetConfigName(basename)
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file == "" && errors.As(err, &notFound) {
			return nil
		}
		return err
	}
	return nil
}

// watchConfig logs edits of the config file. Options are read once at
// startup, so changes take effect on restart.
func watchConfig() {
	viper.OnConfigChange(func(e fsnotify.Event) {
		log.Warn("Configuration file changed, restart to apply", "file", e.Name, "op", e.Op.String())
	})
	viper.WatchConfig()
}
