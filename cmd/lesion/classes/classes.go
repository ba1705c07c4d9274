package classes

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/cozy-creator/lesion-server/internal/app"
	"github.com/cozy-creator/lesion-server/internal/config"

	"github.com/spf13/cobra"
)

var Cmd = &cobra.Command{
	Use:   "classes",
	Short: "List the class catalogue in model output order",
	RunE: func(cmd *cobra.Command, args []string) error {
		catalogue := app.Catalogue(config.MustGetConfig())

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(catalogue)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "INDEX\tID\tNAME\tLOCALIZED")
		for i, label := range catalogue {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i, label.ID, label.Name, label.LocalizedName())
		}
		return w.Flush()
	},
}

func init() {
	Cmd.Flags().Bool("json", false, "Print the catalogue as JSON")
}
