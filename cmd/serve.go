/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/allbin/go-serialcore/internal/command"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Answer JSON commands on stdin/stdout",
	Long: `Run the serial service behind a line-delimited JSON protocol.

Each input line is a request and each output line a response:

  {"id": 1, "command": "open_serial_port", "args": {"port_name": "/dev/ttyUSB0", "config": {"baud_rate": 9600}}}
  {"id": 1, "ok": true, "result": true}

Commands: get_serial_ports, open_serial_port, close_serial_port,
get_connection_status, send_data, receive_data, flush_buffer,
check_port_availability. Failures carry an error kind (EnumerationError,
InvalidConfig, PortUnavailable, NotConnected, TransportError) and a message.

Requests are handled concurrently, so responses may come back out of order;
match them by id. The port is closed when stdin ends.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d := command.NewDispatcher(service, logger.Named("command"))
		return d.Serve(cmd.Context(), os.Stdin, os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

