/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	serialcore "github.com/allbin/go-serialcore"
	"github.com/allbin/go-serialcore/internal/tui/components"
	"github.com/allbin/go-serialcore/internal/tui/keys"
	"github.com/allbin/go-serialcore/internal/tui/models"
	"github.com/allbin/go-serialcore/internal/tui/styles"
)

// serialView is the part shared by listen and console: a traffic pane and
// a status bar over one SerialModel.
type serialView struct {
	*models.SerialModel
	terminal  *components.Terminal
	statusBar *components.StatusBar
	help      help.Model
}

func newSerialView(portName string, config serialcore.Config) serialView {
	return serialView{
		SerialModel: models.NewSerialModel(service, portName, config, appConfig.Receive.DefaultMaxBytes),
		terminal:    components.NewTerminal(80, 20),
		statusBar:   components.NewStatusBar(portName, config),
		help:        help.New(),
	}
}

// apply feeds msg to the serial model and renders what it produced
func (v *serialView) apply(msg tea.Msg) tea.Cmd {
	cmd, entries := v.SerialModel.Update(msg)
	for _, entry := range entries {
		if entry.Data != nil {
			v.terminal.AddMessage(*entry.Data)
			continue
		}
		v.terminal.AddLine(styles.MutedStyle.Render("-- " + entry.Notice))
	}

	v.statusBar.SetState(v.Status())
	v.statusBar.SetAvailable(v.Available())
	v.statusBar.SetError(v.Error())
	return cmd
}

// resize gives the terminal everything except reserved rows
func (v *serialView) resize(width, height, reserved int) {
	v.terminal.SetSize(width, height-reserved)
	v.statusBar.SetWidth(width)
	v.help.Width = width
	v.SetReady(true)
}

// handleKey runs the bindings shared by every traffic view. It reports
// whether the key was consumed.
func (v *serialView) handleKey(msg tea.KeyMsg, k keys.TerminalKeys) (bool, tea.Cmd) {
	switch {
	case key.Matches(msg, k.Quit):
		return true, tea.Quit
	case key.Matches(msg, k.Clear):
		v.ClearData()
		v.terminal.Clear()
	case key.Matches(msg, k.Help):
		v.help.ShowAll = !v.help.ShowAll
	case key.Matches(msg, k.ToggleHex):
		v.terminal.ToggleHex()
		v.terminal.Refresh(v.GetRawData())
	case key.Matches(msg, k.ToggleASCII):
		v.terminal.ToggleASCII()
		v.terminal.Refresh(v.GetRawData())
	case key.Matches(msg, k.ToggleTimestamps):
		v.terminal.ToggleTimestamps()
		v.terminal.Refresh(v.GetRawData())
	case key.Matches(msg, k.ToggleIndicators):
		v.terminal.ToggleIndicators()
		v.terminal.Refresh(v.GetRawData())
	case key.Matches(msg, k.Flush):
		return true, v.Flush()
	case key.Matches(msg, k.Reconnect):
		return true, v.Reconnect()
	default:
		return false, nil
	}
	return true, nil
}

// render stacks the traffic pane, the optional extra rows and the status bar
func (v *serialView) render(mode, sendingMode string, keyMap help.KeyMap, extra ...string) string {
	content := "Initializing..."
	if v.IsReady() {
		content = v.terminal.View()
	}

	parts := []string{styles.ContentBorderStyle.Render(content)}
	parts = append(parts, extra...)
	if v.help.ShowAll {
		parts = append(parts, styles.HelpStyle.Render(v.help.View(keyMap)))
	}
	parts = append(parts, v.statusBar.View(mode, sendingMode, time.Now().Format("15:04:05")))

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}
