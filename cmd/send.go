/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	serialcore "github.com/allbin/go-serialcore"
	"github.com/allbin/go-serialcore/internal/tui/components"
	"github.com/allbin/go-serialcore/internal/tui/styles"
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send [data] <port>",
	Short: "Send data to a serial port",
	Long: `Send data to a serial port and optionally wait for a reply.

Data can be provided as:
- Command line argument: serialctl send "Hello World" /dev/ttyUSB0
- From stdin (pipe): echo "test data" | serialctl send /dev/ttyUSB0
- Interactive mode: serialctl send /dev/ttyUSB0 (prompts for input)

The port is opened, written and closed again. With --wait the command keeps
reading for the given duration and prints whatever arrives.

Example usage:
  serialctl send "AT+GMR" /dev/ttyUSB0 --newline --wait 500ms
  serialctl send "48656c6c6f" /dev/ttyUSB0 --hex
  echo "test" | serialctl send /dev/ttyUSB0`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var data string
		var portName string

		if len(args) == 1 {
			portName = args[0]
			stat, err := os.Stdin.Stat()
			if err != nil || (stat.Mode()&os.ModeCharDevice) != 0 {
				data = promptForData()
			} else {
				stdinData, err := io.ReadAll(os.Stdin)
				if err != nil {
					return fmt.Errorf("reading from stdin: %w", err)
				}
				data = strings.TrimRight(string(stdinData), "\r\n")
			}
		} else {
			data = args[0]
			portName = args[1]
		}

		addNewline, _ := cmd.Flags().GetBool("newline")
		hexMode, _ := cmd.Flags().GetBool("hex")
		wait, _ := cmd.Flags().GetDuration("wait")

		payload := []byte(data)
		if hexMode {
			b, err := components.ParseHex(data)
			if err != nil {
				return fmt.Errorf("invalid hex data: %w", err)
			}
			payload = b
		} else if addNewline {
			payload = append(payload, '\n')
		}

		config, err := serialConfigFromFlags(cmd)
		if err != nil {
			return err
		}

		return sendData(portName, payload, wait, config)
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)

	addSerialFlags(sendCmd)
	sendCmd.Flags().BoolP("newline", "n", false, "Add newline character to the end of data")
	sendCmd.Flags().BoolP("hex", "x", false, "Interpret data as hexadecimal (e.g., '48656c6c6f' for 'Hello')")
	sendCmd.Flags().DurationP("wait", "w", 0, "Keep reading replies for this long after sending")
}

func promptForData() string {
	fmt.Print(styles.InfoStyle.Render("Enter data to send: "))

	scanner := bufio.NewScanner(os.Stdin)
	if scanner.Scan() {
		return scanner.Text()
	}
	return ""
}

// preview renders up to 50 bytes with non-printables replaced
func preview(data []byte) string {
	s := string(data)
	if len(s) > 50 {
		s = s[:50] + "..."
	}
	return strings.Map(func(r rune) rune {
		if r < 32 || r > 126 {
			return '·'
		}
		return r
	}, s)
}

func sendData(portName string, data []byte, wait time.Duration, config serialcore.Config) error {
	fmt.Printf("%s Opening %s (%s)...\n", styles.InfoStyle.Render("⚡"), portName, config)

	if _, err := service.OpenSerialPort(portName, config); err != nil {
		return fmt.Errorf("%s %w", styles.ErrorStyle.Render("✗"), err)
	}
	defer service.CloseSerialPort()

	fmt.Printf("%s Connected successfully\n", styles.SuccessStyle.Render("✓"))
	fmt.Printf("%s Sending %d bytes...\n", styles.InfoStyle.Render("📤"), len(data))

	n, err := service.SendData(data)
	if err != nil {
		return fmt.Errorf("%s failed to send data: %w", styles.ErrorStyle.Render("✗"), err)
	}
	if n < len(data) {
		fmt.Printf("%s Sent %d of %d bytes before the timeout\n", styles.WarningStyle.Render("!"), n, len(data))
	} else {
		fmt.Printf("%s Successfully sent %d bytes\n", styles.SuccessStyle.Render("✓"), n)
	}
	fmt.Printf("%s Data: %s\n", styles.InfoStyle.Render("📋"), preview(data[:n]))

	if wait <= 0 {
		return nil
	}

	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		reply, err := service.ReceiveData(0)
		if err != nil {
			return fmt.Errorf("%s failed to receive: %w", styles.ErrorStyle.Render("✗"), err)
		}
		if len(reply) > 0 {
			fmt.Printf("%s %s\n", styles.InfoStyle.Render("📥"), preview(reply))
		}
	}
	return nil
}
