package recovery

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	recoverydto "recvault/internal/modules/recovery/dto"
	"recvault/internal/ui/theme"
)

// ─── port ────────────────────────────────────────────────────────────────────

type RecoveryPort interface {
	List(ctx context.Context) ([]recoverydto.RecoverableOutput, error)
	Resume(ctx context.Context, sessionID string) (recoverydto.ResumeOutput, error)
	Discard(ctx context.Context, sessionID string) (recoverydto.DiscardOutput, error)
	ExportTo(ctx context.Context, sessionID, format, dir string) (string, error)
}

// ─── messages ────────────────────────────────────────────────────────────────

type SessionsLoadedMsg struct {
	Sessions []recoverydto.RecoverableOutput
	Err      error
}

// ActionDoneMsg reports the outcome of resume, export or discard. The list
// reloads after every action so statuses stay current.
type ActionDoneMsg struct {
	Action    string
	SessionID string
	Detail    string
	Err       error
}

// ─── list item ───────────────────────────────────────────────────────────────

type sessionItem struct {
	session recoverydto.RecoverableOutput
}

func (i sessionItem) Title() string {
	if i.session.Label != "" {
		return i.session.Label
	}
	return i.session.ID
}

func (i sessionItem) Description() string {
	s := i.session
	desc := fmt.Sprintf("%s  %s  %d chunks", s.Status, s.StartTime.Local().Format("2006-01-02 15:04"), s.ChunkCount)
	if s.PartialLoss {
		desc += "  partial"
	}
	if !s.Recoverable {
		desc += "  no audio"
	}
	return desc
}

func (i sessionItem) FilterValue() string { return i.session.Label + " " + i.session.ID }

// ─── model ───────────────────────────────────────────────────────────────────

type Model struct {
	port      RecoveryPort
	exportDir string
	list      list.Model
	preview   viewport.Model
	spinner   spinner.Model
	loading   bool
	width     int
	height    int
}

func New(port RecoveryPort, exportDir string) Model {
	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.Foreground(theme.Lavender).BorderForeground(theme.Lavender)
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.Foreground(theme.Sapphire).BorderForeground(theme.Lavender)

	l := list.New(nil, delegate, 0, 0)
	l.Title = "Recoverable sessions"
	l.Styles.Title = theme.Title
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.SetShowHelp(false)

	vp := viewport.New(0, 0)
	vp.Style = lipgloss.NewStyle().
		Background(theme.Mantle).
		Foreground(theme.Text).
		Padding(1)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.Lavender)

	return Model{
		port:      port,
		exportDir: exportDir,
		list:      l,
		preview:   vp,
		spinner:   sp,
		loading:   true,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.Reload(), m.spinner.Tick)
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()

	case SessionsLoadedMsg:
		m.loading = false
		if msg.Err != nil {
			m.list.Title = "Recoverable sessions: " + msg.Err.Error()
			return m, nil
		}
		m.list.Title = "Recoverable sessions"
		items := make([]list.Item, len(msg.Sessions))
		for i, s := range msg.Sessions {
			items[i] = sessionItem{session: s}
		}
		cmds = append(cmds, m.list.SetItems(items))
		m.preview.SetContent(m.renderDetail())

	case ActionDoneMsg:
		cmds = append(cmds, m.Reload())

	case spinner.TickMsg:
		if m.loading {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	if !m.loading {
		var lCmd tea.Cmd
		prevIdx := m.list.Index()
		m.list, lCmd = m.list.Update(msg)
		cmds = append(cmds, lCmd)
		if m.list.Index() != prevIdx {
			m.preview.SetContent(m.renderDetail())
		}

		var vCmd tea.Cmd
		m.preview, vCmd = m.preview.Update(msg)
		cmds = append(cmds, vCmd)
	}

	return m, tea.Batch(cmds...)
}

func (m Model) View() string {
	if m.loading {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center,
			m.spinner.View()+" Scanning for unsent recordings…")
	}

	listW := m.width * 4 / 10
	detailW := m.width - listW

	listPane := lipgloss.NewStyle().
		Width(listW).
		Height(m.height).
		Render(m.list.View())

	detailPane := theme.Pane.
		Padding(0).
		Width(detailW - 2).
		Height(m.height - 2).
		Render(m.preview.View())

	return lipgloss.JoinHorizontal(lipgloss.Top, listPane, detailPane)
}

// Selected returns the highlighted session, if any.
func (m Model) Selected() (recoverydto.RecoverableOutput, bool) {
	if item, ok := m.list.SelectedItem().(sessionItem); ok {
		return item.session, true
	}
	return recoverydto.RecoverableOutput{}, false
}

// Select moves the cursor to the session with the given id.
func (m *Model) Select(sessionID string) bool {
	for i, item := range m.list.Items() {
		if si, ok := item.(sessionItem); ok && si.session.ID == sessionID {
			m.list.Select(i)
			m.preview.SetContent(m.renderDetail())
			return true
		}
	}
	return false
}

// Count is the number of sessions currently listed.
func (m Model) Count() int { return len(m.list.Items()) }

// Filtering reports whether the list's search filter is currently active.
func (m Model) Filtering() bool {
	return m.list.FilterState() == list.Filtering
}

// ─── actions ─────────────────────────────────────────────────────────────────

func (m Model) Reload() tea.Cmd {
	return func() tea.Msg {
		sessions, err := m.port.List(context.Background())
		return SessionsLoadedMsg{Sessions: sessions, Err: err}
	}
}

func (m Model) Resume(sessionID string) tea.Cmd {
	return func() tea.Msg {
		out, err := m.port.Resume(context.Background(), sessionID)
		detail := "queued for delivery"
		if !out.Queued {
			detail = "not queued"
			if out.Reason != "" {
				detail += ": " + out.Reason
			}
		}
		return ActionDoneMsg{Action: "resume", SessionID: sessionID, Detail: detail, Err: err}
	}
}

func (m Model) Export(sessionID, format string) tea.Cmd {
	return func() tea.Msg {
		path, err := m.port.ExportTo(context.Background(), sessionID, format, m.exportDir)
		return ActionDoneMsg{Action: "export", SessionID: sessionID, Detail: path, Err: err}
	}
}

func (m Model) Discard(sessionID string) tea.Cmd {
	return func() tea.Msg {
		out, err := m.port.Discard(context.Background(), sessionID)
		detail := "nothing to remove"
		if out.Removed {
			detail = "removed"
		}
		return ActionDoneMsg{Action: "discard", SessionID: sessionID, Detail: detail, Err: err}
	}
}

// ─── private ─────────────────────────────────────────────────────────────────

func (m *Model) resize() {
	listW := m.width * 4 / 10
	detailW := m.width - listW
	m.list.SetSize(listW, m.height)
	m.preview.Width = detailW - 4
	m.preview.Height = m.height - 4
}

func (m Model) renderDetail() string {
	s, ok := m.Selected()
	if !ok {
		return theme.Muted.Render("No unsent recordings.")
	}
	var sb strings.Builder
	title := s.Label
	if title == "" {
		title = "(unlabelled)"
	}
	sb.WriteString(theme.Title.Render(title) + "\n\n")
	sb.WriteString(theme.Muted.Render("id:       ") + s.ID + "\n")
	sb.WriteString(theme.Muted.Render("status:   ") + theme.ForStatus(s.Status).Render(s.Status) + "\n")
	sb.WriteString(theme.Muted.Render("started:  ") + s.StartTime.Local().Format("2006-01-02 15:04:05") + "\n")
	if s.EndTime != nil {
		sb.WriteString(theme.Muted.Render("ended:    ") + s.EndTime.Local().Format("2006-01-02 15:04:05") + "\n")
	}
	sb.WriteString(fmt.Sprintf("%s%d (%d bytes)\n", theme.Muted.Render("chunks:   "), s.ChunkCount, s.TotalBytes))

	if !s.Recoverable {
		sb.WriteString("\n" + theme.Bad.Render("No audio survived. Metadata only.") + "\n")
		sb.WriteString("\n" + theme.Muted.Render("d: discard"))
		return sb.String()
	}
	sb.WriteString(fmt.Sprintf("%s%s, %d bytes, seq %d..%d\n",
		theme.Muted.Render("payload:  "), s.Source, s.PayloadBytes, s.FirstSequence, s.LastSequence))
	if s.PartialLoss {
		missing := make([]string, len(s.MissingSequences))
		for i, n := range s.MissingSequences {
			missing[i] = fmt.Sprint(n)
		}
		sb.WriteString(theme.Warn.Render("partial:  missing "+strings.Join(missing, ", ")) + "\n")
	}
	if s.ArtifactPath != "" {
		sb.WriteString(theme.Muted.Render("file:     ") + s.ArtifactPath + "\n")
	}
	if s.Exported {
		sb.WriteString("\n" + theme.Hot.Render("Exported. Delivery will not be retried.") + "\n")
		sb.WriteString("\n" + theme.Muted.Render("e/w: export again  d: discard"))
		return sb.String()
	}
	sb.WriteString("\n" + theme.Muted.Render("r: resume  e: export webm  w: export wav  d: discard"))
	return sb.String()
}
