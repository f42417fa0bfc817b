package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"folio/api/internal/convert"
)

func newConvertCmd(opts *options) *cobra.Command {
	var (
		to  string
		out string
	)
	cmd := &cobra.Command{
		Use:   "convert FILE",
		Short: "Convert citation markers between encodings",
		Long:  "Rewrite the citation markers of FILE (or - for stdin) as interchange [@key] markers or editing [[key]] markers.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, err := opts.jsonOutput()
			if err != nil {
				return err
			}
			text, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}

			var res convert.Result
			switch strings.ToLower(to) {
			case "interchange", "pandoc":
				res = convert.ToInterchange(text)
			case "editing", "wiki":
				res = convert.ToEditing(text)
			default:
				return fmt.Errorf("unknown target %q (want interchange or editing)", to)
			}

			if asJSON {
				return printJSON(cmd, res)
			}
			for _, w := range res.Warnings {
				warn(cmd, "%s", w)
			}
			return writeOutput(cmd, out, res.Text)
		},
	}
	cmd.Flags().StringVarP(&to, "to", "t", "interchange", "Target encoding: interchange or editing")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Write to this file instead of stdout")
	return cmd
}

func newKeysCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "keys FILE",
		Short: "List the citation keys of a draft",
		Long:  "Print the distinct citation keys of FILE (or - for stdin) in first-appearance order, ignoring the References section.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, err := opts.jsonOutput()
			if err != nil {
				return err
			}
			text, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			keys := convert.ExtractKeys(text)
			if asJSON {
				return printJSON(cmd, keys)
			}
			for _, key := range keys {
				fmt.Fprintln(cmd.OutOrStdout(), key)
			}
			return nil
		},
	}
}
