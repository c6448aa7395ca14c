package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/oktsec/toastd/sdk"
)

// Run starts the full-screen watcher against a toastd server and blocks
// until the user quits or ctx is cancelled.
func Run(ctx context.Context, client *sdk.Client, position string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(New(client, position),
		tea.WithContext(ctx),
		tea.WithAltScreen(),
		tea.WithMouseAllMotion(),
	)

	go func() {
		err := client.Events(ctx, func(ev sdk.Event) {
			p.Send(EventMsg(ev))
		})
		if err != nil {
			p.Send(errMsg{fmt.Errorf("event stream: %w", err)})
		}
	}()

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("running watcher: %w", err)
	}
	return nil
}
