package inspector

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/loomcore/provenance/internal/protocol"
)

const (
	maxFeedBlocks = 200
	maxFeedLinks  = 50
)

// tickMsg drives the relative-age labels ("3s ago") without waiting on
// the daemon for a push.
type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// App is the bubbletea model for `provctl watch`: a live feed of
// committed work blocks and source links, read-only.
type App struct {
	client *Client
	theme  Theme

	width, height int
	now           time.Time
	connected     bool
	connErr       error

	blocks []protocol.WorkBlockMsg
	links  []protocol.SourceLinkMsg
}

// NewApp constructs the inspector model. Call Run to start it.
func NewApp(client *Client, theme Theme) *App {
	return &App{client: client, theme: theme, now: time.Now(), connected: true}
}

// Run fetches the initial snapshot, wires the client to the returned
// tea.Program, and blocks until the user quits.
func Run(client *Client, theme Theme) error {
	app := NewApp(client, theme)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	blocks, err := client.QueryRecentWorkBlocks(ctx, maxFeedBlocks)
	cancel()
	if err == nil {
		app.blocks = blocks
	}

	prog := tea.NewProgram(app, tea.WithAltScreen())
	client.SetProgram(prog)
	client.Subscribe(protocol.TypeSubscribeWorkBlocks)
	client.Subscribe(protocol.TypeSubscribeSourceLinks)

	_, err = prog.Run()
	return err
}

func (a *App) Init() tea.Cmd {
	return tick()
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch m := msg.(type) {
	case tea.WindowSizeMsg:
		a.width, a.height = m.Width, m.Height
		return a, nil

	case tea.KeyMsg:
		switch m.String() {
		case "q", "ctrl+c", "esc":
			return a, tea.Quit
		}
		return a, nil

	case tickMsg:
		a.now = time.Time(m)
		return a, tick()

	case WorkBlockMsg:
		a.blocks = append([]protocol.WorkBlockMsg{m.Block}, a.blocks...)
		if len(a.blocks) > maxFeedBlocks {
			a.blocks = a.blocks[:maxFeedBlocks]
		}
		return a, nil

	case SourceLinkMsg:
		a.links = append([]protocol.SourceLinkMsg{m.Link}, a.links...)
		if len(a.links) > maxFeedLinks {
			a.links = a.links[:maxFeedLinks]
		}
		return a, nil

	case ConnErrMsg:
		a.connected = false
		a.connErr = m.Err
		return a, nil
	}
	return a, nil
}

func (a *App) View() string {
	if a.width == 0 {
		return "starting…"
	}

	header := a.renderHeader()
	blocksW := a.width * 3 / 5
	linksW := a.width - blocksW
	bodyH := a.height - lipgloss.Height(header) - 2

	blocksBox := renderBox("work blocks", a.renderBlocks(bodyH-2), blocksW, bodyH, &a.theme)
	linksBox := renderBox("source links", a.renderLinks(bodyH-2), linksW, bodyH, &a.theme)
	body := lipgloss.JoinHorizontal(lipgloss.Top, blocksBox, linksBox)

	help := renderHelpBar([]helpBinding{{"q", "quit"}}, a.width, &a.theme)

	return pageFrame(header+"\n"+body+"\n"+help, a.width, a.width, a.height)
}

func (a *App) renderHeader() string {
	status := lipgloss.NewStyle().Foreground(a.theme.Healthy).Render("● connected")
	if !a.connected {
		status = lipgloss.NewStyle().Foreground(a.theme.Critical).Render("● disconnected")
	}
	title := brightStyle(&a.theme).Bold(true).Render("provenance inspector")
	return title + styledSep(&a.theme) + status
}

func (a *App) renderBlocks(height int) string {
	if len(a.blocks) == 0 {
		return mutedStyle(&a.theme).Render("no work blocks yet")
	}
	var lines []string
	for _, b := range a.blocks {
		if len(lines) >= height {
			break
		}
		lines = append(lines, a.renderBlockRow(b))
	}
	return strings.Join(lines, "\n")
}

func (a *App) renderBlockRow(b protocol.WorkBlockMsg) string {
	age := FormatAge(b.CreatedAt, a.now)
	dur := FormatDurationSecs(b.DurationSecs)
	kind := "auto"
	if b.IsManual {
		kind = "manual"
	}
	summary := b.UserSummary
	if summary == "" {
		summary = b.AutoSummary
	}
	if summary == "" {
		summary = "(no summary)"
	}
	ctx := b.ContextType
	if b.ContextTitle != "" {
		ctx = b.ContextTitle
	}

	header := fmt.Sprintf("%s %s %s %s",
		mutedStyle(&a.theme).Render(age+" ago"),
		accentStyle(&a.theme).Render(ctx),
		mutedStyle(&a.theme).Render(dur),
		mutedStyle(&a.theme).Render("("+kind+")"),
	)
	return header + "\n  " + Truncate(summary, a.width*3/5-4)
}

func (a *App) renderLinks(height int) string {
	if len(a.links) == 0 {
		return mutedStyle(&a.theme).Render("no source links yet")
	}
	var lines []string
	for _, l := range a.links {
		if len(lines) >= height {
			break
		}
		color := a.theme.ConfidenceColor(l.Confidence)
		conf := lipgloss.NewStyle().Foreground(color).Render(fmt.Sprintf("%.0f%%", l.Confidence*100))
		lines = append(lines, fmt.Sprintf("%s %s", conf, Truncate(l.DocID, a.width/5)))
	}
	return strings.Join(lines, "\n")
}
