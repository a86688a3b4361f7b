package cmd

import (
	"fmt"
	"os"

	"github.com/celestiaorg/ismp/pkg/ismp/config"
	"github.com/spf13/cobra"
)

const flagForce = "force"

func initConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init-config",
		Short: "Write the default configuration to the home directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := configPath(cmd)
			if err != nil {
				return err
			}

			force, err := cmd.Flags().GetBool(flagForce)
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists, use --%s to overwrite it", path, flagForce)
			}

			if err := config.Write(path, config.DefaultConfig()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().Bool(flagForce, false, "Overwrite an existing configuration file")
	return cmd
}
