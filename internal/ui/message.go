package ui

import (
	"github.com/desertthunder/storydesk/internal/guard"
	"github.com/desertthunder/storydesk/internal/stories"
)

// guardCheckedMsg carries the guard's decision for this mount.
type guardCheckedMsg struct {
	decision guard.Decision
	err      error
}

// pageFetchedMsg carries a revalidated listing page.
type pageFetchedMsg struct {
	page stories.Page
	err  error
}

// noticeExpiredMsg clears the notice with the same id.
type noticeExpiredMsg struct {
	id int
}

// SessionExpiredMsg tells the dashboard that the session was dropped elsewhere, typically by a 401 on another
// request. Hosts send it with [tea.Program.Send].
type SessionExpiredMsg struct {
	Reason string
}
