package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/oktsec/toastd/sdk"
)

func newHistoryCmd() *cobra.Command {
	var q sdk.HistoryQuery

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Query past toasts",
		Example: `  toastd history
  toastd history --kind alert
  toastd history --event action --agent host-7`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient("cli")
			if err != nil {
				return err
			}
			entries, err := client.History(cmd.Context(), q)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(w, "No history entries found.") //nolint:errcheck // CLI output
				return nil
			}

			tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "TIME\tEVENT\tTOAST\tKIND\tAGENT\tDETAIL\tMESSAGE\n") //nolint:errcheck // CLI output
			for _, e := range entries {
				kind := e.Kind
				if e.Severity != "" {
					kind += "/" + e.Severity
				}
				detail := e.Reason
				if e.Action != "" {
					detail = e.Action
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", //nolint:errcheck // CLI output
					e.Timestamp, e.Event, e.ToastID, kind, e.Agent, detail, e.Message)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&q.Event, "event", "", "filter by event (added, removed, action)")
	cmd.Flags().StringVar(&q.Kind, "kind", "", "filter by kind")
	cmd.Flags().StringVar(&q.Agent, "agent", "", "filter by agent id")
	cmd.Flags().IntVar(&q.Limit, "limit", 50, "max entries to show")
	return cmd
}
