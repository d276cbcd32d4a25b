package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	recoverydto "recvault/internal/modules/recovery/dto"
	"recvault/internal/ui/components"
	"recvault/internal/ui/theme"
	recoveryview "recvault/internal/ui/views/recovery"
)

// ─── ports ───────────────────────────────────────────────────────────────────

type recoveryPort interface {
	List(ctx context.Context) ([]recoverydto.RecoverableOutput, error)
	Resume(ctx context.Context, sessionID string) (recoverydto.ResumeOutput, error)
	Discard(ctx context.Context, sessionID string) (recoverydto.DiscardOutput, error)
	ExportTo(ctx context.Context, sessionID, format, dir string) (string, error)
}

// ─── key bindings ─────────────────────────────────────────────────────────────

type keyMap struct {
	Resume    key.Binding
	Export    key.Binding
	ExportWAV key.Binding
	Discard   key.Binding
	Refresh   key.Binding
	Help      key.Binding
	Palette   key.Binding
	Quit      key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Resume:    key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "resume delivery")),
		Export:    key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "export webm")),
		ExportWAV: key.NewBinding(key.WithKeys("w"), key.WithHelp("w", "export wav")),
		Discard:   key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "discard (twice)")),
		Refresh:   key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "refresh")),
		Help:      key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Palette:   key.NewBinding(key.WithKeys(":"), key.WithHelp(":", "palette")),
		Quit:      key.NewBinding(key.WithKeys("ctrl+c", "q"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Resume, k.Export, k.Discard, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Resume, k.Export, k.ExportWAV, k.Discard},
		{k.Refresh, k.Help, k.Palette, k.Quit},
	}
}

// ─── model ───────────────────────────────────────────────────────────────────

// Model is the root Bubble Tea model for the recovery picker. It owns the
// help overlay, the command palette and the status bar; list rendering and
// port calls live in the recovery view.
type Model struct {
	view recoveryview.Model

	keys     keyMap
	help     help.Model
	showHelp bool
	palette  components.Palette

	// pendingDiscard holds the session id armed by the first "d" press.
	pendingDiscard string
	status         string
	width          int
	height         int
}

func NewModel(recovery recoveryPort, exportDir string) Model {
	return Model{
		view:    recoveryview.New(recoveryPortBridge{p: recovery}, exportDir),
		keys:    defaultKeys(),
		help:    help.New(),
		palette: components.NewPalette(),
		status:  "ready",
	}
}

func (m Model) Init() tea.Cmd {
	return m.view.Init()
}

// ─── update ───────────────────────────────────────────────────────────────────

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.palette.Visible() {
		var cmd tea.Cmd
		m.palette, cmd = m.palette.Update(msg)
		return m, cmd
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.palette.SetWidth(min(m.width-4, 80))
		m.help.Width = m.width
		var cmd tea.Cmd
		m.view, cmd = m.view.Update(tea.WindowSizeMsg{Width: m.width, Height: m.height - 3})
		return m, cmd

	case recoveryview.SessionsLoadedMsg:
		if msg.Err == nil && m.status == "ready" {
			m.status = fmt.Sprintf("%d unsent recording(s)", len(msg.Sessions))
		}

	case recoveryview.ActionDoneMsg:
		if msg.Err != nil {
			m.status = msg.Action + " " + msg.SessionID + " failed: " + msg.Err.Error()
		} else {
			m.status = msg.Action + " " + msg.SessionID + ": " + msg.Detail
		}

	case components.PaletteSubmitMsg:
		return m.executePalette(msg.Input)

	case components.PaletteCancelMsg:
		m.status = "ready"

	case tea.KeyMsg:
		if m.showHelp {
			if msg.String() == "?" || msg.String() == "esc" {
				m.showHelp = false
			}
			return m, nil
		}
		if m.view.Filtering() {
			break
		}

		armed := m.pendingDiscard
		m.pendingDiscard = ""
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.showHelp = true
			return m, nil
		case key.Matches(msg, m.keys.Palette):
			return m, m.palette.Open()
		case key.Matches(msg, m.keys.Refresh):
			m.status = "refreshing"
			return m, m.view.Reload()
		case key.Matches(msg, m.keys.Resume):
			return m.onSelected(func(s recoverydto.RecoverableOutput) tea.Cmd {
				return m.view.Resume(s.ID)
			})
		case key.Matches(msg, m.keys.Export):
			return m.onSelected(func(s recoverydto.RecoverableOutput) tea.Cmd {
				return m.view.Export(s.ID, "webm")
			})
		case key.Matches(msg, m.keys.ExportWAV):
			return m.onSelected(func(s recoverydto.RecoverableOutput) tea.Cmd {
				return m.view.Export(s.ID, "wav")
			})
		case key.Matches(msg, m.keys.Discard):
			s, ok := m.view.Selected()
			if !ok {
				m.status = "no session selected"
				return m, nil
			}
			if armed != s.ID {
				m.pendingDiscard = s.ID
				m.status = "press d again to discard " + s.ID
				return m, nil
			}
			return m, m.view.Discard(s.ID)
		}
	}

	var cmd tea.Cmd
	m.view, cmd = m.view.Update(msg)
	return m, cmd
}

// ─── view ────────────────────────────────────────────────────────────────────

func (m Model) View() string {
	header := m.renderHeader()
	statusBar := m.renderStatusBar()

	contentH := m.height - lipgloss.Height(header) - lipgloss.Height(statusBar)
	if contentH < 1 {
		contentH = 1
	}

	var content string
	switch {
	case m.showHelp:
		content = lipgloss.NewStyle().Width(m.width).Height(contentH).
			Render(m.help.View(m.keys))
	case m.palette.Visible():
		content = lipgloss.Place(m.width, contentH,
			lipgloss.Center, lipgloss.Center, m.palette.View())
	default:
		content = m.view.View()
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, content, statusBar)
}

func (m Model) renderHeader() string {
	bar := "recvault  " + theme.Hot.Render("recovery")
	if n := m.view.Count(); n > 0 {
		bar += theme.Muted.Render(fmt.Sprintf("  %d pending", n))
	}
	return lipgloss.NewStyle().Background(theme.Mantle).Width(m.width).Render(bar) + "\n"
}

func (m Model) renderStatusBar() string {
	left := m.status
	if m.pendingDiscard != "" {
		left = theme.Bad.Render(left)
	}
	right := theme.Muted.Render(m.help.ShortHelpView(m.keys.ShortHelp()))
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	bar := left + strings.Repeat(" ", gap) + right
	return "\n" + lipgloss.NewStyle().Background(theme.Mantle).Width(m.width).Render(bar)
}

// ─── palette execution ────────────────────────────────────────────────────────

func (m Model) executePalette(input string) (tea.Model, tea.Cmd) {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return m, nil
	}

	switch parts[0] {
	case "resume":
		return m.onSelected(func(s recoverydto.RecoverableOutput) tea.Cmd {
			return m.view.Resume(s.ID)
		})

	case "export":
		format := "webm"
		if len(parts) >= 2 {
			format = parts[1]
		}
		return m.onSelected(func(s recoverydto.RecoverableOutput) tea.Cmd {
			return m.view.Export(s.ID, format)
		})

	case "discard":
		return m.onSelected(func(s recoverydto.RecoverableOutput) tea.Cmd {
			return m.view.Discard(s.ID)
		})

	case "refresh":
		m.status = "refreshing"
		return m, m.view.Reload()

	case "select":
		if len(parts) < 2 {
			m.status = "usage: select <session-id>"
			return m, nil
		}
		if !m.view.Select(parts[1]) {
			m.status = "unknown session: " + parts[1]
			return m, nil
		}
		m.status = "selected " + parts[1]

	default:
		m.status = "unknown command: " + parts[0]
	}
	return m, nil
}

// ─── helpers ─────────────────────────────────────────────────────────────────

func (m Model) onSelected(action func(recoverydto.RecoverableOutput) tea.Cmd) (tea.Model, tea.Cmd) {
	s, ok := m.view.Selected()
	if !ok {
		m.status = "no session selected"
		return m, nil
	}
	return m, action(s)
}

// ─── port bridges ─────────────────────────────────────────────────────────────

type recoveryPortBridge struct{ p recoveryPort }

func (b recoveryPortBridge) List(ctx context.Context) ([]recoverydto.RecoverableOutput, error) {
	return b.p.List(ctx)
}
func (b recoveryPortBridge) Resume(ctx context.Context, id string) (recoverydto.ResumeOutput, error) {
	return b.p.Resume(ctx, id)
}
func (b recoveryPortBridge) Discard(ctx context.Context, id string) (recoverydto.DiscardOutput, error) {
	return b.p.Discard(ctx, id)
}
func (b recoveryPortBridge) ExportTo(ctx context.Context, id, format, dir string) (string, error) {
	return b.p.ExportTo(ctx, id, format, dir)
}
