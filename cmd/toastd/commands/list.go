package commands

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/oktsec/toastd/sdk"
)

func newListCmd() *cobra.Command {
	var visible bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List live toasts",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient("cli")
			if err != nil {
				return err
			}

			var toasts []sdk.Toast
			if visible {
				toasts, err = client.Visible(cmd.Context())
			} else {
				toasts, err = client.List(cmd.Context())
			}
			if err != nil {
				return err
			}

			if len(toasts) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No live toasts.") //nolint:errcheck // CLI output
				return nil
			}
			return printToasts(cmd.OutOrStdout(), toasts)
		},
	}

	cmd.Flags().BoolVar(&visible, "visible", false, "only toasts currently on screen")
	return cmd
}

func printToasts(w io.Writer, toasts []sdk.Toast) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\tKIND\tSTATE\tLEFT\tAGENT\tMESSAGE\n") //nolint:errcheck // CLI output
	for _, t := range toasts {
		state := t.State
		if t.Paused {
			state += " (paused)"
		}
		left := (time.Duration(t.RemainingMs) * time.Millisecond).Round(100 * time.Millisecond)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", //nolint:errcheck // CLI output
			t.ID, kindLabel(t), state, left, t.Agent, t.Message)
	}
	return tw.Flush()
}

// kindLabel renders the kind (and alert severity) in its dashboard colour.
func kindLabel(t sdk.Toast) string {
	label := t.Kind
	if t.Kind == "alert" && t.Severity != "" {
		label += "/" + t.Severity
	}

	var c *color.Color
	switch {
	case t.Severity == "critical":
		c = color.New(color.FgRed, color.Bold)
	case t.Severity == "high", t.Kind == "error":
		c = color.New(color.FgRed)
	case t.Severity == "medium", t.Kind == "warning":
		c = color.New(color.FgYellow)
	case t.Kind == "success":
		c = color.New(color.FgGreen)
	default:
		c = color.New(color.FgCyan)
	}
	return c.Sprint(label)
}
