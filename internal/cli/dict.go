package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func (a *app) newDictCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dict",
		Short: "Query the dictionary",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "search <pinyin>",
		Short: "Look up dictionary entries by pronunciation",
		Long: `Search returns up to 50 entries: exact pronunciation matches first, then
entries whose pronunciation starts with the query. Tones are ignored.

Example:
  cidian dict search hen
  cidian dict search "ni hao"
  cidian dict search hǎo`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.attachBackend()
			if err != nil {
				return err
			}
			defer store.Detach()

			entries, err := store.Dictionary().Lookup(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			if a.flags.jsonMode {
				return printJSON(cmd.OutOrStdout(), entries)
			}

			out := cmd.OutOrStdout()
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSIMPLIFIED\tPINYIN\tENGLISH")
			for _, e := range entries {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n",
					e.ID, e.Simplified, strings.Join(e.Pinyin, " "), strings.Join(e.English, "; "))
			}
			tw.Flush()
			fmt.Fprintf(out, "Total: %d\n", len(entries))
			return nil
		},
	})
	return cmd
}
