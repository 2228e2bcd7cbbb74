package components

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/allbin/go-serialcore/internal/tui/styles"
)

// TX states shown next to sent data
const (
	TXPending = "PENDING"
	TXWritten = "WRITTEN"
	TXPartial = "PARTIAL"
	TXError   = "ERROR"
)

// DataMsg is one chunk of traffic, received or sent
type DataMsg struct {
	Timestamp time.Time
	Data      []byte
	IsTX      bool
	Status    string // TX only
	Note      string // free text, e.g. "3/5 bytes"
}

type DisplayMode struct {
	ShowHex        bool
	ShowASCII      bool
	HideTimestamps bool
	HideIndicators bool
}

type DataFormatter struct {
	mode DisplayMode
}

func NewDataFormatter(showHex, showASCII bool) *DataFormatter {
	return &DataFormatter{
		mode: DisplayMode{
			ShowHex:   showHex,
			ShowASCII: showASCII,
		},
	}
}

func (df *DataFormatter) SetFormatOptions(hideTimestamps, hideIndicators bool) {
	df.mode.HideTimestamps = hideTimestamps
	df.mode.HideIndicators = hideIndicators
}

func (df *DataFormatter) GetDisplayMode() DisplayMode {
	return df.mode
}

func (df *DataFormatter) indicator(msg DataMsg) string {
	if !msg.IsTX {
		return lipgloss.NewStyle().Foreground(styles.Sky).Bold(true).Render("↙ RX")
	}

	var txColor lipgloss.Color
	var statusText string
	switch msg.Status {
	case TXPending:
		txColor = styles.Yellow
		statusText = "TX ○"
	case TXWritten:
		txColor = styles.Green
		statusText = "TX ✓"
	case TXPartial:
		txColor = styles.Peach
		statusText = "TX ◐"
	case TXError:
		txColor = styles.Red
		statusText = "TX ✗"
	default:
		txColor = styles.Peach
		statusText = "TX"
	}
	return lipgloss.NewStyle().Foreground(txColor).Bold(true).Render("↗ " + statusText)
}

// printable replaces anything outside printable ASCII with a dot
func printable(data []byte) string {
	var b strings.Builder
	b.Grow(len(data))
	for _, c := range data {
		if c >= 32 && c <= 126 {
			b.WriteByte(c)
		} else {
			b.WriteByte('.')
		}
	}
	return b.String()
}

func (df *DataFormatter) FormatMessage(msg DataMsg) string {
	var parts []string
	if df.mode.ShowHex {
		parts = append(parts, fmt.Sprintf("HEX: % X", msg.Data))
	}
	if df.mode.ShowASCII {
		parts = append(parts, "ASCII: "+printable(msg.Data))
	}
	if !df.mode.ShowHex && !df.mode.ShowASCII {
		parts = append(parts, fmt.Sprintf("BYTES: %d", len(msg.Data)))
	}
	if msg.Note != "" {
		parts = append(parts, lipgloss.NewStyle().Foreground(styles.Overlay0).Render(msg.Note))
	}

	var prefix []string
	if !df.mode.HideTimestamps {
		prefix = append(prefix, lipgloss.NewStyle().
			Foreground(styles.Subtext0).
			Render(fmt.Sprintf("[%s]", msg.Timestamp.Format("15:04:05.000"))))
	}
	if !df.mode.HideIndicators {
		prefix = append(prefix, df.indicator(msg)+":")
	}

	body := strings.Join(parts, "  ")
	if len(prefix) == 0 {
		return body
	}
	return strings.Join(prefix, " ") + " " + body
}

func (df *DataFormatter) FormatMessages(messages []DataMsg) []string {
	formatted := make([]string, len(messages))
	for i, msg := range messages {
		formatted[i] = df.FormatMessage(msg)
	}
	return formatted
}

func (df *DataFormatter) ToggleHex() {
	df.mode.ShowHex = !df.mode.ShowHex
}

func (df *DataFormatter) ToggleASCII() {
	df.mode.ShowASCII = !df.mode.ShowASCII
}

func (df *DataFormatter) ToggleTimestamps() {
	df.mode.HideTimestamps = !df.mode.HideTimestamps
}

func (df *DataFormatter) ToggleIndicators() {
	df.mode.HideIndicators = !df.mode.HideIndicators
}
