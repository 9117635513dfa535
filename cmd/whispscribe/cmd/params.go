package cmd

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/alessio/shellescape"
	"github.com/spf13/cobra"

	"github.com/eternnoir/whispscribe/pkg/params"
)

var paramsCmd = &cobra.Command{
	Use:   "params",
	Short: "Manage extra whisper-cli parameters",
	Long: `Manage the list of extra parameters passed to whisper-cli.

Enabled entries are appended to every invocation in list order, as the name
followed by the value when the value is not empty. Put "--" before names
that start with a dash:

  whispscribe params add -- --temperature 0.2
  whispscribe params remove -- --temperature`,
}

var paramsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the parameter list",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := loadService()
		if err != nil {
			return err
		}
		list := svc.Params()
		out := cmd.OutOrStdout()
		if len(list) == 0 {
			fmt.Fprintln(out, "No parameters.")
			return nil
		}

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "#\tON\tNAME\tVALUE")
		for i, e := range list {
			on := " "
			if e.Enabled {
				on = "✓"
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i+1, on, e.Name, e.Value)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(out, "\nargs: %s\n", shellescape.QuoteCommand(list.ToCommandArgs()))
		return nil
	},
}

var paramsAddCmd = &cobra.Command{
	Use:   "add NAME [VALUE]",
	Short: "Add a parameter or update the one with the same name",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		disabled, _ := cmd.Flags().GetBool("disabled")
		entry := params.Entry{Enabled: !disabled, Name: args[0]}
		if len(args) == 2 {
			entry.Value = args[1]
		}
		return updateParams(func(list params.List) (params.List, error) {
			return list.AddOrUpdate(entry)
		})
	},
}

var paramsRemoveCmd = &cobra.Command{
	Use:   "remove NAME|INDEX...",
	Short: "Remove parameters by name or by 1-based position",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			names   []string
			indexes []int
		)
		for _, arg := range args {
			if n, err := strconv.Atoi(arg); err == nil {
				indexes = append(indexes, n-1)
				continue
			}
			names = append(names, arg)
		}
		return updateParams(func(list params.List) (params.List, error) {
			return list.RemoveAt(indexes...).Remove(names...), nil
		})
	},
}

func toggleCmd(use, short string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " NAME",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return updateParams(func(list params.List) (params.List, error) {
				entry, ok := list.Lookup(args[0])
				if !ok {
					return nil, fmt.Errorf("no parameter named %q", args[0])
				}
				entry.Enabled = enabled
				return list.AddOrUpdate(entry)
			})
		},
	}
}

// updateParams loads, edits and saves the parameter list.
func updateParams(edit func(params.List) (params.List, error)) error {
	svc, err := loadService()
	if err != nil {
		return err
	}
	list, err := edit(svc.Params())
	if err != nil {
		return err
	}
	svc.SetParams(list)
	return svc.Persist()
}

func init() {
	rootCmd.AddCommand(paramsCmd)
	paramsCmd.AddCommand(
		paramsListCmd,
		paramsAddCmd,
		paramsRemoveCmd,
		toggleCmd("enable", "Enable a parameter", true),
		toggleCmd("disable", "Disable a parameter", false),
	)

	paramsAddCmd.Flags().Bool("disabled", false, "add the parameter unchecked")
}
