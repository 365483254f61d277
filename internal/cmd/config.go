// internal/cmd/config.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/phildougherty/queuescale/internal/config"
)

func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective options as YAML",
		Long: `Resolve flags, environment variables, the .env file and the config file the
same way run does, validate the result and print it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := newViper(cmd)
			if err != nil {
				return err
			}
			opts, err := config.Load(v)
			if err != nil {
				return err
			}

			out, err := yaml.Marshal(opts)
			if err != nil {
				return fmt.Errorf("failed to render options: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}

	config.BindFlags(cmd.Flags())

	return cmd
}
