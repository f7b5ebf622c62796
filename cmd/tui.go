package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/storydesk/internal/events"
	"github.com/desertthunder/storydesk/internal/session"
	"github.com/desertthunder/storydesk/internal/shared"
	"github.com/desertthunder/storydesk/internal/ui"
)

// Dashboard launches the interactive story dashboard.
func (r *Runner) Dashboard(ctx context.Context, cmd *cli.Command) error {
	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger("./tmp/storydesk-tui.log")
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	if err := r.SetLogger(ctx, fileLogger); err != nil {
		return err
	}
	if r.guard == nil || r.stories == nil {
		return fmt.Errorf("%w: dashboard services not initialized", shared.ErrServiceUnavailable)
	}

	model := ui.NewModel(ctx, r.guard, r.stories)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	unsubscribe, err := r.bus.OnSessionChanged(func(e events.SessionChanged) {
		if e.State == session.StateUnauthenticated.String() {
			go p.Send(ui.SessionExpiredMsg{})
		}
	})
	if err != nil {
		return err
	}
	defer unsubscribe()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
