// internal/cmd/root.go
package cmd

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/phildougherty/queuescale/internal/config"
	"github.com/phildougherty/queuescale/internal/errors"
	"github.com/phildougherty/queuescale/internal/logging"
)

const (
	flagConfigFile = "config"
	flagEnvFile    = "env-file"
	flagLogLevel   = "log-level"
	flagLogJSON    = "log-json"
)

func NewRootCommand(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "queuescale",
		Short: "Scale a Kubernetes deployment on SQS queue depth",
		Long: `queuescale polls the depth of an SQS queue and keeps the replica count of the
Kubernetes deployment consuming it proportional to the backlog.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String(flagConfigFile, "", "YAML file with options keyed by flag name")
	rootCmd.PersistentFlags().String(flagEnvFile, "", "Load environment variables from this .env file first")
	rootCmd.PersistentFlags().String(flagLogLevel, "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool(flagLogJSON, false, "Log in JSON instead of text")

	rootCmd.AddCommand(NewRunCommand())
	rootCmd.AddCommand(NewConfigCommand())
	rootCmd.AddCommand(NewEvaluateCommand())

	return rootCmd
}

// newViper loads the optional .env file and binds the command's flags, the
// environment and the optional config file.
func newViper(cmd *cobra.Command) (*viper.Viper, error) {
	envFile, _ := cmd.Flags().GetString(flagEnvFile)
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, errors.NewError(errors.KindConfig, "failed to load env file "+envFile, err)
		}
	}

	configFile, _ := cmd.Flags().GetString(flagConfigFile)
	return config.NewViper(cmd.Flags(), configFile)
}

func newLogger(v *viper.Viper) *logging.Logger {
	logger := logging.NewLogger(v.GetString(flagLogLevel))
	logger.SetJSONFormat(v.GetBool(flagLogJSON))
	return logger
}
