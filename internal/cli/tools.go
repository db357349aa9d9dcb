package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/tripgenie/tripgenie-backend/internal/repository"
)

// NewToolsCmd creates the tools command group
func NewToolsCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List or call the trip-planning tools directly",
	}

	cmd.AddCommand(newToolsListCmd(env))
	cmd.AddCommand(newToolsCallCmd(env))

	return cmd
}

func newToolsListCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the registered tools and their arguments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			gw, _, err := env.gateway()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TOOL\tARGUMENTS")
			for _, t := range gw.Tools() {
				var fields []string
				for _, f := range t.Schema().Fields {
					name := f.Name
					if f.Required {
						name += "*"
					}
					fields = append(fields, name)
				}
				fmt.Fprintf(w, "%s\t%s\n", t.Name(), strings.Join(fields, ", "))
			}
			return w.Flush()
		},
	}
}

func newToolsCallCmd(env *Env) *cobra.Command {
	var rawArgs string

	cmd := &cobra.Command{
		Use:   "call <tool>",
		Short: "Invoke one tool through the gateway",
		Long: `Invoke one tool with JSON arguments, for example:

  tripgenie tools call generate_itinerary --args '{"destination":"Rome","start_date":"2025-07-05","end_date":"2025-07-08","travelers":2}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gw, _, err := env.gateway()
			if err != nil {
				return err
			}

			result := gw.InvokeJSON(cmd.Context(), args[0], rawArgs, repository.TripContext{})
			fmt.Fprintln(cmd.OutOrStdout(), result.Content)
			if result.Failed() {
				return fmt.Errorf("tool %s finished with status %s", args[0], result.Status)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&rawArgs, "args", "{}", "Tool arguments as a JSON object")
	return cmd
}
