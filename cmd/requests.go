package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/travel-requests/internal"
	"github.com/frahmantamala/travel-requests/internal/datefmt"
	"github.com/frahmantamala/travel-requests/internal/router"
	"github.com/frahmantamala/travel-requests/internal/travelrequest"
)

var (
	listFilters travelrequest.Filters
	listPage    int
	listPerPage int

	createInput  travelrequest.CreateInput
	createCityID int64
	createNotes  string
)

var requestsCmd = &cobra.Command{
	Use:     "requests",
	Aliases: []string{"pedidos"},
	Short:   "Manage travel requests",
}

var listRequestsCmd = &cobra.Command{
	Use:   "list",
	Short: "List travel requests",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withDependencies(cmd.Context(), func(ctx context.Context, deps *Dependencies) error {
			if err := requireRoute(ctx, deps, router.RouteDashboard); err != nil {
				return err
			}

			store := deps.TravelRequests
			store.SetFilters(listFilters)
			store.SetPerPage(ctx, listPerPage)
			if listPage > 1 {
				store.GoToPage(ctx, listPage)
			}
			if message := store.ErrorMessage(); message != "" {
				return errors.New(message)
			}

			out := cmd.OutOrStdout()
			if err := printRequests(out, store.Filtered()); err != nil {
				return err
			}
			page := store.Pagination()
			fmt.Fprintf(out, "Página %d de %d (%d pedidos)\n", page.CurrentPage, page.LastPage, page.Total)
			return nil
		})
	},
}

var createRequestCmd = &cobra.Command{
	Use:   "create",
	Short: "Submit a travel request",
	RunE: func(cmd *cobra.Command, _ []string) error {
		in := createInput
		if cmd.Flags().Changed("city-id") {
			in.CityID = &createCityID
		}
		if cmd.Flags().Changed("notes") {
			in.Notes = &createNotes
		}

		return withDependencies(cmd.Context(), func(ctx context.Context, deps *Dependencies) error {
			if err := requireRoute(ctx, deps, router.RouteCadastrar); err != nil {
				return err
			}

			created, err := deps.TravelRequests.Create(ctx, in)
			if err != nil {
				return requestError(deps, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Pedido #%d criado.\n", created.ID)
			return printRequests(cmd.OutOrStdout(), []travelrequest.TravelRequest{*created})
		})
	},
}

func statusCommand(use, short string, status travelrequest.Status) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q", args[0])
			}

			return withDependencies(cmd.Context(), func(ctx context.Context, deps *Dependencies) error {
				if err := requireRoute(ctx, deps, router.RouteDashboard); err != nil {
					return err
				}

				store := deps.TravelRequests
				store.Fetch(ctx)
				for _, item := range store.Items() {
					if item.ID == id && !item.Status.CanTransitionTo(status) {
						return fmt.Errorf("o pedido #%d está %s e não pode ser alterado", id, item.Status.Label())
					}
				}

				updated, err := store.UpdateStatus(ctx, id, status)
				if err != nil {
					return requestError(deps, err)
				}

				fmt.Fprintf(cmd.OutOrStdout(), "Pedido #%d: %s.\n", updated.ID, updated.Status.Label())
				return nil
			})
		},
	}
}

func requestError(deps *Dependencies, err error) error {
	if apiErr, ok := internal.AsAPIError(err); ok && apiErr.IsSessionError() {
		return sessionError(deps, err)
	}
	if message := deps.TravelRequests.ErrorMessage(); message != "" {
		return errors.New(message)
	}
	return err
}

func printRequests(out io.Writer, items []travelrequest.TravelRequest) error {
	if len(items) == 0 {
		fmt.Fprintln(out, "Nenhum pedido encontrado.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSOLICITANTE\tDESTINO\tIDA\tVOLTA\tSTATUS")
	for _, item := range items {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			item.ID,
			item.RequesterName,
			item.LocationLabel,
			datefmt.FormatForDisplay(item.DepartureDate),
			datefmt.FormatForDisplay(item.ReturnDate),
			item.Status.Label())
	}
	return w.Flush()
}

func init() {
	flags := listRequestsCmd.Flags()
	flags.StringVar(&listFilters.Status, "status", travelrequest.StatusAll, "requested, approved, cancelled or all")
	flags.StringVar(&listFilters.Location, "location", "", "text contained in the destination")
	flags.StringVar(&listFilters.DepartureFrom, "departure-from", "", "earliest departure date (dd/mm/yyyy or yyyy-mm-dd)")
	flags.StringVar(&listFilters.DepartureTo, "departure-to", "", "latest departure date")
	flags.StringVar(&listFilters.ReturnFrom, "return-from", "", "earliest return date")
	flags.StringVar(&listFilters.ReturnTo, "return-to", "", "latest return date")
	flags.IntVar(&listPage, "page", 1, "page to show")
	flags.IntVar(&listPerPage, "per-page", travelrequest.DefaultPagination().PerPage, "requests per page")

	createFlags := createRequestCmd.Flags()
	createFlags.StringVar(&createInput.RequesterName, "requester", "", "name of the traveller")
	createFlags.Int64Var(&createCityID, "city-id", 0, "destination city id (see destinations search)")
	createFlags.StringVar(&createInput.DepartureDate, "departure", "", "departure date")
	createFlags.StringVar(&createInput.ReturnDate, "return", "", "return date")
	createFlags.StringVar(&createNotes, "notes", "", "free text notes")

	requestsCmd.AddCommand(listRequestsCmd)
	requestsCmd.AddCommand(createRequestCmd)
	requestsCmd.AddCommand(statusCommand("approve", "Approve a requested trip", travelrequest.StatusApproved))
	requestsCmd.AddCommand(statusCommand("cancel", "Cancel a requested trip", travelrequest.StatusCancelled))
}
