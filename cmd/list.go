/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/evertras/bubble-table/table"
	"github.com/spf13/cobra"

	serialcore "github.com/allbin/go-serialcore"
	"github.com/allbin/go-serialcore/internal/tui/styles"
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List available serial ports",
	Long: `List all serial ports currently present on the system.

Every call performs a fresh enumeration. Ports are classified as USB, PCI,
Bluetooth or Unknown; USB ports include vendor/product IDs and serial numbers
when the system reports them. A device exposing several interfaces under one
name is listed once.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		filterType, _ := cmd.Flags().GetString("filter")
		tableFormat, _ := cmd.Flags().GetBool("table")
		jsonFormat, _ := cmd.Flags().GetBool("json")

		ports, err := service.GetSerialPorts()
		if err != nil {
			return fmt.Errorf("listing ports: %w", err)
		}

		filtered, err := filterPorts(ports, filterType)
		if err != nil {
			return err
		}

		switch {
		case jsonFormat:
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(filtered)
		case len(filtered) == 0 && filterType != "" && filterType != "all":
			fmt.Printf("No serial ports found matching filter: %s\n", filterType)
		case len(filtered) == 0:
			fmt.Println("No serial ports found")
		case tableFormat:
			renderTable(filtered)
		default:
			renderSimple(filtered)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringP("filter", "f", "", "Filter by port type: usb, pci, bluetooth, unknown, all")
	listCmd.Flags().BoolP("table", "t", false, "Display output in a styled table format")
	listCmd.Flags().Bool("json", false, "Print the listing as JSON")
}

// filterPorts keeps the ports of the requested type
func filterPorts(ports []serialcore.PortDescriptor, filterType string) ([]serialcore.PortDescriptor, error) {
	var want serialcore.PortType
	switch strings.ToLower(filterType) {
	case "", "all":
		return ports, nil
	case "usb":
		want = serialcore.PortTypeUSB
	case "pci":
		want = serialcore.PortTypePCI
	case "bluetooth", "bt":
		want = serialcore.PortTypeBluetooth
	case "unknown":
		want = serialcore.PortTypeUnknown
	default:
		return nil, fmt.Errorf("unknown filter %q (use usb, pci, bluetooth, unknown or all)", filterType)
	}

	filtered := make([]serialcore.PortDescriptor, 0, len(ports))
	for _, port := range ports {
		if port.PortType == want {
			filtered = append(filtered, port)
		}
	}
	return filtered, nil
}

const (
	columnPort        = "port"
	columnType        = "type"
	columnID          = "id"
	columnSerial      = "serial"
	columnDescription = "description"
)

// portRows converts the listing into table rows
func portRows(ports []serialcore.PortDescriptor) []table.Row {
	rows := make([]table.Row, 0, len(ports))
	for _, port := range ports {
		id := ""
		if port.VendorID != "" || port.ProductID != "" {
			id = port.VendorID + ":" + port.ProductID
		}

		var name any = port.PortName
		if port.IsOpen {
			name = table.NewStyledCell(port.PortName+" *", lipgloss.NewStyle().Foreground(styles.Green))
		}

		rows = append(rows, table.NewRow(table.RowData{
			columnPort:        name,
			columnType:        string(port.PortType),
			columnID:          id,
			columnSerial:      port.SerialNumber,
			columnDescription: port.Description,
		}))
	}
	return rows
}

// renderTable renders the port list in a styled static table format
func renderTable(ports []serialcore.PortDescriptor) {
	fmt.Printf("Found %d serial port(s):\n\n", len(ports))

	columns := []table.Column{
		table.NewColumn(columnPort, "Port", 18),
		table.NewColumn(columnType, "Type", 10),
		table.NewColumn(columnID, "VID:PID", 10),
		table.NewColumn(columnSerial, "Serial", 16),
		table.NewColumn(columnDescription, "Description", 36),
	}

	t := table.New(columns).
		WithRows(portRows(ports)).
		BorderRounded().
		HeaderStyle(lipgloss.NewStyle().Bold(true).Foreground(styles.Mauve)).
		WithBaseStyle(lipgloss.NewStyle().Foreground(styles.Text).Align(lipgloss.Left))

	fmt.Println(t.View())
}

// renderSimple renders the port list in simple text format
func renderSimple(ports []serialcore.PortDescriptor) {
	for _, port := range ports {
		if port.IsOpen {
			fmt.Printf("%s (open)\n", port.PortName)
			continue
		}
		fmt.Println(port.PortName)
	}
}
