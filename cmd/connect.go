/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	serialcore "github.com/allbin/go-serialcore"
	"github.com/allbin/go-serialcore/internal/tui/components"
	"github.com/allbin/go-serialcore/internal/tui/keys"
	"github.com/allbin/go-serialcore/internal/tui/models"
	"github.com/allbin/go-serialcore/internal/tui/styles"
)

// consolePollTimeout keeps the receive loop from holding the port long
// enough to delay typed input
const consolePollTimeout = 100 * time.Millisecond

// consoleCmd represents the console command
var consoleCmd = &cobra.Command{
	Use:     "console <port>",
	Aliases: []string{"connect"},
	Short:   "Interactive bidirectional terminal for a serial port",
	Long: `Open a serial port in an interactive terminal.

Received data streams into the main pane. Press 'i' to type, Enter to send,
Tab to switch between ASCII and hex input and Esc to return to normal mode.
The status bar shows the connection state, refreshed every second, and warns
when the device disappears from the port list.

Unless --timeout is given, reads are polled every 100ms.

Example usage:
  serialctl console /dev/ttyUSB0
  serialctl console /dev/ttyUSB0 --baud 9600 --line-ending crlf`,
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{tuiAnnotation: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		portName := args[0]

		config, err := serialConfigFromFlags(cmd)
		if err != nil {
			return err
		}
		if !cmd.Flags().Changed("timeout") {
			config.TimeoutMS = int(consolePollTimeout.Milliseconds())
		}

		ending, _ := cmd.Flags().GetString("line-ending")
		lineEnding, err := parseLineEnding(ending)
		if err != nil {
			return err
		}

		return runConsoleTUI(portName, config, lineEnding)
	},
}

func init() {
	rootCmd.AddCommand(consoleCmd)

	addSerialFlags(consoleCmd)
	consoleCmd.Flags().StringP("line-ending", "l", "lf", "Appended to ASCII input: none, lf, cr, crlf")
}

func parseLineEnding(s string) (string, error) {
	switch s {
	case "none", "":
		return "", nil
	case "lf":
		return "\n", nil
	case "cr":
		return "\r", nil
	case "crlf":
		return "\r\n", nil
	default:
		return "", fmt.Errorf("unknown line ending %q (use none, lf, cr or crlf)", s)
	}
}

// consoleModel represents the Bubble Tea model for the console command
type consoleModel struct {
	serialView
	input *components.Input
	keys  keys.ConsoleKeys
}

func runConsoleTUI(portName string, config serialcore.Config, lineEnding string) error {
	m := &consoleModel{
		serialView: newSerialView(portName, config),
		input:      components.NewInput(lineEnding),
		keys:       keys.NewConsoleKeys(),
	}

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	_, err := p.Run()

	m.Cleanup()
	return err
}

func (m *consoleModel) Init() tea.Cmd {
	return m.SerialModel.Init()
}

// send queues the current input. Invalid hex is reported and nothing is sent.
func (m *consoleModel) send() tea.Cmd {
	value := m.input.Value()
	if value == "" {
		return nil
	}

	data, display, err := m.input.Payload()
	if err != nil {
		m.terminal.AddLine(styles.ErrorStyle.Render(fmt.Sprintf("-- Invalid hex input: %v", err)))
		return nil
	}

	m.input.AddToHistory(value)
	m.input.SetValue("")
	return m.Send(data, display)
}

func (m *consoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	cmds := []tea.Cmd{m.apply(msg)}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		// Input box (3 rows with border), content border and status bar
		m.resize(msg.Width, msg.Height, 5)
		m.input.SetWidth(msg.Width)

	case tea.KeyMsg:
		if m.IsInInsertMode() {
			switch {
			case key.Matches(msg, m.keys.Escape):
				m.SetInputMode(models.InputModeNormal)
				m.input.Blur()
				return m, tea.Batch(cmds...)
			case key.Matches(msg, m.keys.Enter):
				return m, tea.Batch(append(cmds, m.send())...)
			case key.Matches(msg, m.keys.Up):
				m.input.NavigateHistoryUp()
				return m, tea.Batch(cmds...)
			case key.Matches(msg, m.keys.Down):
				m.input.NavigateHistoryDown()
				return m, tea.Batch(cmds...)
			case key.Matches(msg, m.keys.ToggleSendMode):
				m.input.ToggleSendingMode()
				return m, tea.Batch(cmds...)
			}

			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			return m, tea.Batch(append(cmds, cmd)...)
		}

		switch {
		case key.Matches(msg, m.keys.InsertMode):
			m.SetInputMode(models.InputModeInsert)
			m.input.Focus()
		case key.Matches(msg, m.keys.ToggleSendMode):
			m.input.ToggleSendingMode()
		default:
			if handled, cmd := m.handleKey(msg, m.keys.TerminalKeys); handled {
				cmds = append(cmds, cmd)
			}
		}
	}

	cmds = append(cmds, m.terminal.Update(msg))
	return m, tea.Batch(cmds...)
}

func (m *consoleModel) View() string {
	mode := m.GetInputMode().String()
	input := m.input.ViewWithMode(m.IsInInsertMode())
	return m.render(mode, m.input.GetSendingMode().String(), m.keys, input)
}
