package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/oktsec/toastd/sdk"
)

type pushFlags struct {
	title    string
	agent    string
	duration time.Duration
	actions  []string
	meta     []string
	callback string
}

func (f *pushFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.title, "title", "", "toast title")
	cmd.Flags().StringVar(&f.agent, "agent", "", "endpoint agent id the toast refers to")
	cmd.Flags().DurationVar(&f.duration, "duration", 0, "display time (default: per kind)")
	cmd.Flags().StringArrayVar(&f.actions, "action", nil, "action button as id[=label] (repeatable)")
	cmd.Flags().StringArrayVar(&f.meta, "meta", nil, "metadata as key=value (repeatable)")
	cmd.Flags().StringVar(&f.callback, "callback", "", "URL notified when an action is pressed")
}

func (f *pushFlags) request(message string) (sdk.CreateRequest, error) {
	req := sdk.CreateRequest{
		Title:       f.title,
		Message:     message,
		Agent:       f.agent,
		DurationMs:  f.duration.Milliseconds(),
		CallbackURL: f.callback,
	}
	for _, a := range f.actions {
		id, label, _ := strings.Cut(a, "=")
		if id == "" {
			return req, fmt.Errorf("invalid --action %q", a)
		}
		req.Actions = append(req.Actions, sdk.Action{ID: id, Label: label})
	}
	for _, m := range f.meta {
		k, v, ok := strings.Cut(m, "=")
		if !ok || k == "" {
			return req, fmt.Errorf("invalid --meta %q, want key=value", m)
		}
		if req.Metadata == nil {
			req.Metadata = make(map[string]string)
		}
		req.Metadata[k] = v
	}
	return req, nil
}

func newPushCmd() *cobra.Command {
	var f pushFlags
	var kind string

	cmd := &cobra.Command{
		Use:   "push <message>",
		Short: "Show a toast on the dashboard",
		Example: `  toastd push "Policy saved" --kind success
  toastd push "Scan finished" --action open=Open --duration 8s`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := f.request(args[0])
			if err != nil {
				return err
			}
			req.Kind = kind

			client, err := newClient("cli")
			if err != nil {
				return err
			}
			id, err := client.Push(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id) //nolint:errcheck // CLI output
			return nil
		},
	}

	f.register(cmd)
	cmd.Flags().StringVar(&kind, "kind", "info", "success, error, warning or info")
	return cmd
}

func newAlertCmd() *cobra.Command {
	var f pushFlags
	var severity string

	cmd := &cobra.Command{
		Use:   "alert <message>",
		Short: "Raise a security alert toast",
		Example: `  toastd alert "Ransomware behaviour detected" --severity critical --agent host-7
  toastd alert "New USB device" --severity low`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := f.request(args[0])
			if err != nil {
				return err
			}
			req.Severity = severity

			client, err := newClient("cli")
			if err != nil {
				return err
			}
			id, err := client.Alert(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id) //nolint:errcheck // CLI output
			return nil
		},
	}

	f.register(cmd)
	cmd.Flags().StringVar(&severity, "severity", "low", "critical, high, medium or low")
	return cmd
}
