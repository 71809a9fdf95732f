package cmd

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/travel-requests/internal/router"
)

var destinationsCmd = &cobra.Command{
	Use:   "destinations",
	Short: "Look up destinations",
}

var searchDestinationsCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search destinations by name",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")

		return withDependencies(cmd.Context(), func(ctx context.Context, deps *Dependencies) error {
			if err := requireRoute(ctx, deps, router.RouteCadastrar); err != nil {
				return err
			}

			results, err := deps.Destinations.Search(ctx, query)
			if err != nil {
				return sessionError(deps, err)
			}

			if len(results) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Nenhum destino encontrado.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CITY_ID\tDESTINO\tSLUG")
			for _, d := range results {
				fmt.Fprintf(w, "%d\t%s\t%s\n", d.CityID, d.Label, d.Slug)
			}
			return w.Flush()
		})
	},
}

func init() {
	destinationsCmd.AddCommand(searchDestinationsCmd)
}
