package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/storydesk/internal/guard"
	"github.com/desertthunder/storydesk/internal/session"
	"github.com/desertthunder/storydesk/internal/stories"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	VerifyingView ViewState = iota
	ListView
	DetailView
	LoginView
)

// Guard is the mount-time session check.
type Guard interface {
	Check(ctx context.Context) (guard.Decision, error)
}

// Stories is the listing surface of [stories.Service] the dashboard reads.
type Stories interface {
	ListAuthorStories(ctx context.Context, author string, page int) (stories.Page, error)
	CachedAuthorStories(ctx context.Context) []stories.Book
}

// notice is a [session.Notice] with the id of its pending expiry.
type notice struct {
	session.Notice
	id int
}

// Model represents the TUI application state.
type Model struct {
	ctx      context.Context
	view     ViewState
	guard    Guard
	stories  Stories
	author   string
	reason   string
	width    int
	height   int
	books    list.Model
	selected *stories.Book
	page     int
	pages    int
	loading  bool
	notice   *notice
	noticeID int
	help     help.Model
	keys     keyMap
}

// NewModel creates a new TUI model with the provided dependencies.
func NewModel(ctx context.Context, g Guard, s Stories) *Model {
	books := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	books.Title = "Your Stories"
	books.SetShowHelp(false)

	return &Model{
		ctx:     ctx,
		view:    VerifyingView,
		guard:   g,
		stories: s,
		books:   books,
		page:    1,
		pages:   1,
		help:    help.New(),
		keys:    newKeyMap(),
	}
}

// ViewState reports the current view state.
func (m *Model) ViewState() ViewState { return m.view }

// Init runs the guard's verification call.
func (m *Model) Init() tea.Cmd {
	return m.checkGuard()
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.books.SetSize(msg.Width-4, msg.Height-8)
		return m, nil

	case tea.KeyMsg:
		return m.handleKeys(msg)

	case guardCheckedMsg:
		return m.handleGuard(msg)

	case pageFetchedMsg:
		m.loading = false
		if msg.err != nil {
			return m, m.showNotice(session.UnexpectedNotice(msg.err))
		}
		m.page = max(msg.page.Page, 1)
		m.pages = max(msg.page.Pages, 1)
		m.books.SetItems(bookItems(msg.page.Books))
		return m, nil

	case noticeExpiredMsg:
		if m.notice != nil && m.notice.id == msg.id {
			m.notice = nil
		}
		return m, nil

	case SessionExpiredMsg:
		reason := msg.Reason
		if reason == "" {
			reason = guard.ReasonSessionExpired
		}
		m.toLogin(reason)
		return m, nil
	}

	if m.view == ListView {
		var cmd tea.Cmd
		m.books, cmd = m.books.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) handleGuard(msg guardCheckedMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		return m, m.showNotice(session.UnexpectedNotice(msg.err))
	}

	d := msg.decision
	switch d.View {
	case guard.ViewProtected:
		m.author = d.User.Username
		m.view = ListView
		m.reason = ""
		if cached := m.stories.CachedAuthorStories(m.ctx); len(cached) > 0 {
			m.books.SetItems(bookItems(cached))
		}
		return m, m.fetchPage(1)
	case guard.ViewLogin:
		m.toLogin(d.Reason)
		return m, nil
	default:
		m.view = VerifyingView
		return m, nil
	}
}

func (m *Model) toLogin(reason string) {
	m.view = LoginView
	m.reason = reason
	m.selected = nil
	m.books.SetItems(nil)
}

func (m *Model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.quit) && !m.filtering() {
		return m, tea.Quit
	}

	switch m.view {
	case ListView:
		return m.handleListKeys(msg)
	case DetailView:
		if key.Matches(msg, m.keys.back) {
			m.selected = nil
			m.view = ListView
		}
	}
	return m, nil
}

func (m *Model) handleListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if !m.filtering() {
		switch {
		case key.Matches(msg, m.keys.enter):
			if item, ok := m.books.SelectedItem().(bookItem); ok {
				book := item.book
				m.selected = &book
				m.view = DetailView
			}
			return m, nil
		case key.Matches(msg, m.keys.next):
			if m.page < m.pages && !m.loading {
				return m, m.fetchPage(m.page + 1)
			}
			return m, nil
		case key.Matches(msg, m.keys.prev):
			if m.page > 1 && !m.loading {
				return m, m.fetchPage(m.page - 1)
			}
			return m, nil
		case key.Matches(msg, m.keys.refresh):
			if !m.loading {
				return m, m.fetchPage(m.page)
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.books, cmd = m.books.Update(msg)
	return m, cmd
}

func (m *Model) filtering() bool {
	return m.view == ListView && m.books.FilterState() == list.Filtering
}

func (m *Model) checkGuard() tea.Cmd {
	return func() tea.Msg {
		d, err := m.guard.Check(m.ctx)
		return guardCheckedMsg{decision: d, err: err}
	}
}

func (m *Model) fetchPage(page int) tea.Cmd {
	m.loading = true
	author := m.author
	return func() tea.Msg {
		p, err := m.stories.ListAuthorStories(m.ctx, author, page)
		return pageFetchedMsg{page: p, err: err}
	}
}

// showNotice replaces the current notice and schedules its expiry.
func (m *Model) showNotice(n session.Notice) tea.Cmd {
	m.noticeID++
	id := m.noticeID
	m.notice = &notice{Notice: n, id: id}
	return tea.Tick(n.TTL, func(time.Time) tea.Msg {
		return noticeExpiredMsg{id: id}
	})
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	var body string
	switch m.view {
	case VerifyingView:
		body = ""
	case ListView:
		body = m.renderList()
	case DetailView:
		body = m.renderDetail()
	case LoginView:
		body = m.renderLogin()
	}

	if m.notice == nil {
		return body
	}
	style := styles.ok
	if m.notice.IsError {
		style = styles.err
	}
	return fmt.Sprintf("%s\n\n%s", body, style.Render(m.notice.Text))
}

func (m *Model) renderList() string {
	status := fmt.Sprintf("Page %d of %d", m.page, m.pages)
	if m.loading {
		status += " • refreshing..."
	}
	helpKeys := []key.Binding{m.keys.enter, m.keys.next, m.keys.prev, m.keys.refresh, m.keys.quit}
	return fmt.Sprintf("%s\n%s\n\n%s", m.books.View(), styles.help.Render(status), m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderDetail() string {
	if m.selected == nil {
		return ""
	}
	b := m.selected

	var sb strings.Builder
	sb.WriteString(styles.title.Render(b.Title))
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "%s %s\n", styles.label.Render("Slug:"), b.Slug)
	fmt.Fprintf(&sb, "%s %s\n", styles.label.Render("Rating:"), b.Rating())
	fmt.Fprintf(&sb, "%s %s\n", styles.label.Render("Read time:"), b.ReadTimeLabel())
	if len(b.Tags) > 0 {
		fmt.Fprintf(&sb, "%s %s\n", styles.label.Render("Tags:"), strings.Join(b.Tags, ", "))
	}
	fmt.Fprintf(&sb, "\n%s\n", b.ShortSummary())

	if len(b.ContentTitles) > 0 {
		fmt.Fprintf(&sb, "\n%s\n", styles.label.Render(fmt.Sprintf("Chapters (%d):", b.ContentCount)))
		for i, t := range b.ContentTitles {
			fmt.Fprintf(&sb, "  %d. %s\n", i+1, t)
		}
	}

	helpKeys := []key.Binding{m.keys.back, m.keys.quit}
	return fmt.Sprintf("%s\n%s", sb.String(), m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderLogin() string {
	title := styles.warn.Render("Login required")
	info := "Run `storydesk auth login` to sign in, then reopen the dashboard."
	if m.reason != "" {
		info = fmt.Sprintf("%s\n\n%s", styles.err.Render(m.reason), info)
	}
	return fmt.Sprintf("%s\n\n%s\n\n%s", title, info, m.help.ShortHelpView([]key.Binding{m.keys.quit}))
}
