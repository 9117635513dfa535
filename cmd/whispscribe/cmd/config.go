package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/eternnoir/whispscribe/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and change saved settings",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := loadService()
		if err != nil {
			return err
		}
		data, err := svc.MarshalEffective()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, string(data))

		if sources, _ := cmd.Flags().GetBool("sources"); sources {
			fmt.Fprintf(out, "\nsettings file: %s\n", svc.StorePath())
			fmt.Fprintf(out, "  keys: %s\n", strings.Join(svc.RecordKeys(), ", "))
			fmt.Fprintf(out, "pipeline config: %s\n", svc.ExternalPath())
			for k, v := range svc.External() {
				fmt.Fprintf(out, "  %s=%s\n", k, v)
			}
		}
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get KEY",
	Short: "Print one effective setting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := loadService()
		if err != nil {
			return err
		}
		v, err := svc.Value(args[0])
		if err != nil {
			return err
		}
		if s, ok := v.(string); ok {
			fmt.Fprintln(cmd.OutOrStdout(), s)
			return nil
		}
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Save a setting",
	Long: `Save a setting to the settings file. Saved settings take precedence over
the pipeline config file and the built-in defaults.

Keys: ` + strings.Join(config.Keys(), ", "),
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := loadService()
		if err != nil {
			return err
		}
		if args[0] == config.KeyParams {
			return fmt.Errorf("use the params command to edit %s", config.KeyParams)
		}
		if err := svc.Set(args[0], args[1]); err != nil {
			return err
		}
		return svc.Persist()
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset KEY",
	Short: "Remove a saved setting so lower layers apply",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := loadService()
		if err != nil {
			return err
		}
		if err := svc.Unset(args[0]); err != nil {
			return err
		}
		return svc.Persist()
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file locations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := loadService()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "settings:        %s\n", svc.StorePath())
		fmt.Fprintf(out, "pipeline config: %s\n", svc.ExternalPath())
		fmt.Fprintf(out, "history:         %s\n", historyPath(svc))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd, configGetCmd, configSetCmd, configUnsetCmd, configPathCmd)

	configShowCmd.Flags().Bool("sources", false, "also list the files and the keys they set")
}
