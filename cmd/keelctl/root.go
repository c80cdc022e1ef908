package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	dialectFlag string
	dsnFlag     string
	outputFmt   string
)

var rootCmd = &cobra.Command{
	Use:   "keelctl",
	Short: "Operator CLI for the delivery-config persistence core",
	Long: `keelctl bootstraps a database connection for the artifact,
delivery-config, and resource repositories and runs one-off operator
commands against them: listing artifacts, inspecting delivery configs,
and manually triggering the periodic-check claim loop.

It is a bootstrapping convenience, not a server: it holds no HTTP
listener and performs no authentication.`,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("dialect", "sqlite", "Storage dialect: postgres, mysql, sqlite")
	rootCmd.PersistentFlags().String("dsn", ":memory:", "Data source name / connection string")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table", "Output format: table, json")
	rootCmd.PersistentFlags().String("config", "", "Path to a config file (default: $HOME/.keelctl.yaml)")

	_ = viper.BindPFlag("dialect", rootCmd.PersistentFlags().Lookup("dialect"))
	_ = viper.BindPFlag("dsn", rootCmd.PersistentFlags().Lookup("dsn"))

	rootCmd.AddCommand(artifactsCmd)
	rootCmd.AddCommand(resourcesCmd)
	rootCmd.AddCommand(deliveryCmd)
}

// initConfig wires viper to read KEEL_-prefixed environment variables and
// an optional config file, following the precedence flag > env > file >
// default that the persistent flags above declare.
func initConfig() {
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.SetConfigName(".keelctl")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("keel")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			slog.Warn("could not read config file", "error", err)
		}
	}

	dialectFlag = viper.GetString("dialect")
	dsnFlag = viper.GetString("dsn")
}

