package main

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newXPCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "xp",
		Short: "Print the active XP table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			table, err := root.table()
			if err != nil {
				return err
			}
			spec := table.Spec()
			if root.json {
				return writeJSON(cmd.OutOrStdout(), spec)
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(spec); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}
