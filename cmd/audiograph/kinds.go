package main

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"pipelined.dev/audiograph/kind"
)

var kindsCmd = &cobra.Command{
	Use:   "kinds",
	Short: "List node kinds and their fields",
	RunE: func(cmd *cobra.Command, args []string) error {
		return printKinds(cmd, kind.DefaultRegistry())
	},
}

func init() {
	rootCmd.AddCommand(kindsCmd)
}

func printKinds(cmd *cobra.Command, r *kind.Registry) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KIND\tROLE\tASYNC\tFIELDS")
	for _, k := range r.Kinds() {
		d := r.MustLookup(k)
		defaults := d.Defaults()
		var fields []string
		for _, f := range d.Fields() {
			fields = append(fields, fmt.Sprintf("%s(%s)=%s", f.Name, f.Semantics, value(defaults[f.Name])))
		}
		sort.Strings(fields)
		fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", k, d.Role, d.Async, strings.Join(fields, " "))
	}
	return w.Flush()
}

func value(v any) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprint(v)
}
