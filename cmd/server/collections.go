package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"labdesk/internal/schema"
)

var collectionsCmd = &cobra.Command{
	Use:   "collections",
	Short: "List the collections the console manages",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tLABEL\tFIELDS\tSORT\tEXPAND")
		for _, c := range schema.Default().All() {
			keys := make([]string, len(c.Fields))
			for i, f := range c.Fields {
				keys[i] = f.Key
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				c.Name, c.Label, strings.Join(keys, ","), c.DefaultSort, strings.Join(c.Expand, ","))
		}
		return w.Flush()
	},
}
