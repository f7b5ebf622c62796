// Package ui implements the storydesk dashboard using bubbletea's Elm architecture.
//
// The dashboard is a guarded view:
//  1. [VerifyingView] : blank while the guard's single verification call is in flight
//  2. [ListView] : the author's stories, seeded from the cached listing and then revalidated
//  3. [DetailView] : one story's metadata, tags and chapter titles
//  4. [LoginView] : shown when the guard or a later 401 drops the session
//
// Notices are time-boxed: each one schedules its own expiry with tea.Tick.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, n/p, r, q) with contextual help displayed via
// charmbracelet/bubbles/help.
package ui
