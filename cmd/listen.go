/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	serialcore "github.com/allbin/go-serialcore"
	"github.com/allbin/go-serialcore/internal/tui/keys"
)

// listenCmd represents the listen command
var listenCmd = &cobra.Command{
	Use:   "listen <port>",
	Short: "Listen for data on a serial port with real-time display",
	Long: `Listen for incoming data on a serial port.

By default a full-screen view shows received data with timestamps in ASCII
and hex, and the connection state in the status bar. An unplugged device is
reported and can be reconnected with 'r'.

With --output the data is appended to a file instead (use - for stdout),
running until interrupted.

Example usage:
  serialctl listen /dev/ttyUSB0
  serialctl listen /dev/ttyUSB0 --baud 9600 --parity even
  serialctl listen /dev/ttyUSB0 --output capture.log --console`,
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{tuiAnnotation: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		portName := args[0]

		config, err := serialConfigFromFlags(cmd)
		if err != nil {
			return err
		}

		if output, _ := cmd.Flags().GetString("output"); output != "" {
			showConsole, _ := cmd.Flags().GetBool("console")
			return runCapture(portName, output, showConsole, config)
		}

		noTimestamps, _ := cmd.Flags().GetBool("no-timestamps")
		showIndicators, _ := cmd.Flags().GetBool("show-indicators")
		rawMode, _ := cmd.Flags().GetBool("raw")

		return runListenTUI(portName, config, noTimestamps || rawMode, !showIndicators || rawMode)
	},
}

func init() {
	rootCmd.AddCommand(listenCmd)

	addSerialFlags(listenCmd)
	listenCmd.Flags().StringP("output", "o", "", "Append received data to a file instead of showing the TUI (- for stdout)")
	listenCmd.Flags().BoolP("console", "c", false, "With --output, also echo data to stdout")

	listenCmd.Flags().Bool("no-timestamps", false, "Hide timestamps from output")
	listenCmd.Flags().Bool("show-indicators", false, "Show RX/TX indicators (off by default)")
	listenCmd.Flags().Bool("raw", false, "Raw output mode: no timestamps, no indicators")
}

// listenModel represents the Bubble Tea model for the listen command
type listenModel struct {
	serialView
	keys keys.TerminalKeys
}

func runListenTUI(portName string, config serialcore.Config, hideTimestamps, hideIndicators bool) error {
	m := &listenModel{
		serialView: newSerialView(portName, config),
		keys:       keys.NewTerminalKeys(),
	}
	m.terminal.SetFormatOptions(hideTimestamps, hideIndicators)

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	_, err := p.Run()

	m.Cleanup()
	return err
}

func (m *listenModel) Init() tea.Cmd {
	return m.SerialModel.Init()
}

func (m *listenModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	cmds := []tea.Cmd{m.apply(msg)}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		// Status bar is single line
		m.resize(msg.Width, msg.Height, 2)

	case tea.KeyMsg:
		if handled, cmd := m.handleKey(msg, m.keys); handled {
			cmds = append(cmds, cmd)
		}
	}

	cmds = append(cmds, m.terminal.Update(msg))
	return m, tea.Batch(cmds...)
}

func (m *listenModel) View() string {
	return m.render("LISTEN", "", m.keys)
}
