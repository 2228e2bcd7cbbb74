package components

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	serialcore "github.com/allbin/go-serialcore"
	"github.com/allbin/go-serialcore/internal/tui/styles"
)

// StatusBar renders the bottom line. It only shows what it is given; the
// model owns the connection state.
type StatusBar struct {
	portName  string
	config    serialcore.Config
	state     *serialcore.ConnectionState // nil while unknown
	available bool
	err       error
	width     int
}

func NewStatusBar(portName string, config serialcore.Config) *StatusBar {
	return &StatusBar{
		portName:  portName,
		config:    config,
		available: true,
	}
}

func (sb *StatusBar) SetWidth(width int) {
	sb.width = width
}

// SetState records a fresh status snapshot, or nil when the last one is stale
func (sb *StatusBar) SetState(state *serialcore.ConnectionState) {
	sb.state = state
	if state != nil && state.IsConnected {
		sb.config = state.Config
	}
}

func (sb *StatusBar) SetAvailable(available bool) {
	sb.available = available
}

func (sb *StatusBar) SetError(err error) {
	sb.err = err
}

func (sb *StatusBar) indicator() string {
	switch {
	case sb.state == nil:
		return styles.StatusStyle(styles.StatusConnecting).Render("○")
	case sb.state.IsConnected && sb.available:
		return styles.StatusStyle(styles.StatusConnected).Render("●")
	case sb.state.IsConnected:
		return styles.StatusStyle(styles.StatusConnecting).Render("◐")
	case sb.err != nil:
		return styles.StatusStyle(styles.StatusError).Render("✗")
	default:
		return styles.StatusStyle(styles.StatusDisconnected).Render("○")
	}
}

func (sb *StatusBar) message() string {
	switch {
	case sb.err != nil:
		return fmt.Sprintf("%s: %v", serialcore.KindOf(sb.err), sb.err)
	case sb.state == nil:
		return "Refreshing..."
	case sb.state.IsConnected && !sb.available:
		return "Device no longer listed"
	case sb.state.IsConnected:
		return ""
	default:
		return "Disconnected"
	}
}

// View renders the status bar. mode is the vim-like input mode and
// sendingMode is only shown in INSERT.
func (sb *StatusBar) View(mode, sendingMode, timestamp string) string {
	width := sb.width
	if width <= 0 {
		width = 80
	}

	modeStyle := lipgloss.NewStyle().
		Foreground(styles.Base).
		Background(styles.Blue).
		Bold(true).
		Padding(0, 1)
	if mode == "INSERT" {
		modeStyle = modeStyle.Background(styles.Green)
	}

	port := lipgloss.NewStyle().
		Foreground(styles.Mauve).
		Bold(true).
		Padding(0, 1).
		Render(sb.portName)

	divider := lipgloss.NewStyle().
		Foreground(styles.Surface2).
		Padding(0, 1).
		Render("│")

	left := []string{modeStyle.Render(mode), port, sb.indicator()}
	if mode == "INSERT" {
		left = append(left, lipgloss.NewStyle().
			Foreground(styles.Peach).
			Bold(true).
			Padding(0, 1).
			Render(fmt.Sprintf("[%s] Tab to toggle", sendingMode)))
	}
	if msg := sb.message(); msg != "" {
		left = append(left, lipgloss.NewStyle().
			Foreground(styles.Red).
			Padding(0, 1).
			Render(msg))
	}
	left = append(left, divider)
	leftSide := lipgloss.JoinHorizontal(lipgloss.Left, left...)

	details := lipgloss.NewStyle().
		Foreground(styles.Subtext0).
		Padding(0, 1).
		Render("⚡ " + sb.config.String())
	clock := lipgloss.NewStyle().
		Foreground(styles.Subtext1).
		Padding(0, 1).
		Render(timestamp)
	rightSide := lipgloss.JoinHorizontal(lipgloss.Left, details, divider, clock)

	spacerWidth := width - lipgloss.Width(leftSide) - lipgloss.Width(rightSide)
	if spacerWidth < 1 {
		spacerWidth = 1
	}
	spacer := lipgloss.NewStyle().Width(spacerWidth).Render("")

	return lipgloss.NewStyle().
		Foreground(styles.Text).
		Background(styles.Surface0).
		Width(width).
		Render(lipgloss.JoinHorizontal(lipgloss.Left, leftSide, spacer, rightSide))
}
