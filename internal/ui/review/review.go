// Package review provides the terminal review queue: a list of drafts
// waiting for approval with approve/reject/edit/skip actions, backed by
// the daemon's HTTP API.
package review

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/sophiahq/sophia/internal/api"
)

type state int

const (
	stateList state = iota
	stateEdit
	stateReject
	stateDiff
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#73F59F"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#777777"))
	selStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFFFF"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF8787"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#73F59F"))
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	badgeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#54A0FF"))
)

// Model is the review queue TUI.
type Model struct {
	client *api.Client

	state   state
	drafts  []api.DraftResponse
	cursor  int
	width   int
	height  int
	status  string
	err     error
	loading bool

	editArea    textarea.Model
	rejectTags  textinput.Model
	rejectNotes textinput.Model
	rejectFocus int
}

// New creates the review model.
func New(client *api.Client) Model {
	ta := textarea.New()
	ta.Placeholder = "Edited copy..."
	ta.CharLimit = 0

	tags := textinput.New()
	tags.Placeholder = "tags (comma separated, e.g. tone,too_long)"
	notes := textinput.New()
	notes.Placeholder = "guidance for the next draft"

	return Model{
		client:      client,
		editArea:    ta,
		rejectTags:  tags,
		rejectNotes: notes,
		loading:     true,
	}
}

// === Messages ===

type draftsLoadedMsg struct {
	drafts []api.DraftResponse
}

type actionDoneMsg struct {
	verb string
	id   string
}

type errMsg struct {
	err error
}

// Init loads the review queue.
func (m Model) Init() tea.Cmd {
	return m.loadDrafts()
}

func (m Model) loadDrafts() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		drafts, err := m.client.ListDrafts(ctx, "in_review")
		if err != nil {
			return errMsg{err}
		}
		return draftsLoadedMsg{drafts}
	}
}

func (m Model) act(verb string, fn func(ctx context.Context, id string) error) tea.Cmd {
	id := m.drafts[m.cursor].ID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := fn(ctx, id); err != nil {
			return errMsg{err}
		}
		return actionDoneMsg{verb: verb, id: id}
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.editArea.SetWidth(msg.Width - 6)
		m.editArea.SetHeight(msg.Height / 2)
		return m, nil

	case draftsLoadedMsg:
		m.drafts = msg.drafts
		m.loading = false
		m.err = nil
		if m.cursor >= len(m.drafts) {
			m.cursor = max(0, len(m.drafts)-1)
		}
		return m, nil

	case actionDoneMsg:
		m.status = fmt.Sprintf("%s %s", msg.verb, shortID(msg.id))
		m.state = stateList
		m.loading = true
		return m, m.loadDrafts()

	case errMsg:
		m.err = msg.err
		m.loading = false
		m.state = stateList
		return m, nil

	case tea.KeyMsg:
		switch m.state {
		case stateEdit:
			return m.updateEdit(msg)
		case stateReject:
			return m.updateReject(msg)
		case stateDiff:
			if msg.String() == "q" || msg.String() == "esc" {
				m.state = stateList
			}
			return m, nil
		default:
			return m.updateList(msg)
		}
	}
	return m, nil
}

func (m Model) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "j", "down":
		if m.cursor < len(m.drafts)-1 {
			m.cursor++
		}
	case "k", "up":
		if m.cursor > 0 {
			m.cursor--
		}
	case "R":
		m.loading = true
		return m, m.loadDrafts()
	case "a":
		if len(m.drafts) > 0 {
			return m, m.act("approved", func(ctx context.Context, id string) error {
				_, err := m.client.Approve(ctx, id, api.ApproveRequest{})
				return err
			})
		}
	case "s":
		if len(m.drafts) > 0 {
			return m, m.act("skipped", func(ctx context.Context, id string) error {
				_, err := m.client.Skip(ctx, id)
				return err
			})
		}
	case "e":
		if len(m.drafts) > 0 {
			m.state = stateEdit
			m.editArea.SetValue(m.drafts[m.cursor].Copy)
			m.editArea.Focus()
			return m, textarea.Blink
		}
	case "r":
		if len(m.drafts) > 0 {
			m.state = stateReject
			m.rejectTags.SetValue("")
			m.rejectNotes.SetValue("")
			m.rejectFocus = 0
			m.rejectTags.Focus()
			m.rejectNotes.Blur()
			return m, textinput.Blink
		}
	case "d":
		if len(m.drafts) > 0 && len(m.drafts[m.cursor].EditHistory) > 0 {
			m.state = stateDiff
		}
	}
	return m, nil
}

func (m Model) updateEdit(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.state = stateList
		return m, nil
	case "ctrl+s":
		edited := m.editArea.Value()
		return m, m.act("edited", func(ctx context.Context, id string) error {
			_, err := m.client.Edit(ctx, id, api.EditRequest{Copy: edited})
			return err
		})
	}
	var cmd tea.Cmd
	m.editArea, cmd = m.editArea.Update(msg)
	return m, cmd
}

func (m Model) updateReject(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.state = stateList
		return m, nil
	case "tab", "shift+tab":
		m.rejectFocus = 1 - m.rejectFocus
		if m.rejectFocus == 0 {
			m.rejectTags.Focus()
			m.rejectNotes.Blur()
		} else {
			m.rejectNotes.Focus()
			m.rejectTags.Blur()
		}
		return m, textinput.Blink
	case "enter":
		var tags []string
		for _, t := range strings.Split(m.rejectTags.Value(), ",") {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
		guidance := m.rejectNotes.Value()
		return m, m.act("rejected", func(ctx context.Context, id string) error {
			_, err := m.client.Reject(ctx, id, api.RejectRequest{Tags: tags, Guidance: guidance})
			return err
		})
	}
	var cmd tea.Cmd
	if m.rejectFocus == 0 {
		m.rejectTags, cmd = m.rejectTags.Update(msg)
	} else {
		m.rejectNotes, cmd = m.rejectNotes.Update(msg)
	}
	return m, cmd
}

// View renders the current state.
func (m Model) View() string {
	switch m.state {
	case stateEdit:
		return m.viewEdit()
	case stateReject:
		return m.viewReject()
	case stateDiff:
		return m.viewDiff()
	default:
		return m.viewList()
	}
}

func (m Model) viewList() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Review Queue"))
	b.WriteString("\n\n")

	switch {
	case m.loading:
		b.WriteString(dimStyle.Render("Loading..."))
	case len(m.drafts) == 0:
		b.WriteString(dimStyle.Render("Nothing waiting for review."))
	default:
		for i, d := range m.drafts {
			line := fmt.Sprintf("%s %s %s  %s",
				shortID(d.ID), badgeStyle.Render(d.Platform),
				dimStyle.Render(d.ClientID), firstLine(d.Copy, 60))
			if d.VoiceScore > 0 {
				line += dimStyle.Render(fmt.Sprintf("  voice %.2f", d.VoiceScore))
			}
			if i == m.cursor {
				b.WriteString(selStyle.Render("> " + line))
			} else {
				b.WriteString("  " + line)
			}
			b.WriteString("\n")
		}
		if m.cursor < len(m.drafts) {
			b.WriteString("\n")
			b.WriteString(boxStyle.Render(m.drafts[m.cursor].Copy))
		}
	}

	b.WriteString("\n\n")
	if m.err != nil {
		b.WriteString(errStyle.Render("error: "+m.err.Error()) + "\n")
	} else if m.status != "" {
		b.WriteString(okStyle.Render(m.status) + "\n")
	}
	b.WriteString(dimStyle.Render("a approve · e edit · r reject · s skip · d diff · R refresh · q quit"))
	return b.String()
}

func (m Model) viewEdit() string {
	return titleStyle.Render("Edit Copy") + "\n\n" +
		m.editArea.View() + "\n\n" +
		dimStyle.Render("ctrl+s save · esc cancel")
}

func (m Model) viewReject() string {
	return titleStyle.Render("Reject Draft") + "\n\n" +
		"Tags:     " + m.rejectTags.View() + "\n" +
		"Guidance: " + m.rejectNotes.View() + "\n\n" +
		dimStyle.Render("enter submit · tab switch field · esc cancel")
}

// viewDiff shows the most recent edit as an inline word diff.
func (m Model) viewDiff() string {
	d := m.drafts[m.cursor]
	last := d.EditHistory[len(d.EditHistory)-1]

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(last.OldCopy, last.NewCopy, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	return titleStyle.Render("Last Edit") + "  " +
		dimStyle.Render(last.At.Format("2006-01-02 15:04")) + "\n\n" +
		boxStyle.Render(dmp.DiffPrettyText(diffs)) + "\n\n" +
		dimStyle.Render("q back")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func firstLine(s string, limit int) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > limit {
		s = s[:limit] + "…"
	}
	return s
}
