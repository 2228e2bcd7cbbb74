/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	serialcore "github.com/allbin/go-serialcore"
)

// infoCmd represents the info command
var infoCmd = &cobra.Command{
	Use:   "info <port>",
	Short: "Display detailed information about a serial port",
	Long: `Display what the registry knows about a serial port, including USB metadata.

Examples:
  serialctl info /dev/ttyUSB0
  serialctl info COM3`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		portName := args[0]

		ports, err := service.GetSerialPorts()
		if err != nil {
			return fmt.Errorf("listing ports: %w", err)
		}

		port, ok := findPort(ports, portName)
		if !ok {
			return fmt.Errorf("%w: %s is not present", serialcore.ErrDeviceNotFound, portName)
		}

		fmt.Printf("Port Information: %s\n\n", port.PortName)
		fmt.Printf("  Type:        %s\n", port.PortType)
		fmt.Printf("  Description: %s\n", port.Description)
		fmt.Printf("  Open:        %t\n", port.IsOpen)

		if port.VendorID != "" || port.ProductID != "" || port.SerialNumber != "" {
			fmt.Println("\nUSB Device Information:")
			if port.VendorID != "" {
				fmt.Printf("  Vendor ID:    %s\n", port.VendorID)
			}
			if port.ProductID != "" {
				fmt.Printf("  Product ID:   %s\n", port.ProductID)
			}
			if port.SerialNumber != "" {
				fmt.Printf("  Serial:       %s\n", port.SerialNumber)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func findPort(ports []serialcore.PortDescriptor, name string) (serialcore.PortDescriptor, bool) {
	for _, port := range ports {
		if port.PortName == name {
			return port, true
		}
	}
	return serialcore.PortDescriptor{}, false
}
