/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"time"

	"github.com/spf13/cobra"

	serialcore "github.com/allbin/go-serialcore"
)

// addSerialFlags registers the port configuration flags. Flags left unset
// fall back to the serial section of the config file.
func addSerialFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.IntP("baud", "b", 115200, "Baud rate")
	f.Int("data-bits", 8, "Data bits: 5, 6, 7 or 8")
	f.Int("stop-bits", 1, "Stop bits: 1 or 2")
	f.StringP("parity", "p", "none", "Parity: none, odd, even")
	f.StringP("flow-control", "f", "none", "Flow control: none, rts_cts, dtr_dsr")
	f.Duration("timeout", time.Second, "Per-call read/write timeout")
}

func serialConfigFromFlags(cmd *cobra.Command) (serialcore.Config, error) {
	config, err := appConfig.SerialConfig()
	if err != nil {
		return serialcore.Config{}, err
	}

	f := cmd.Flags()
	var opts []serialcore.Option

	if f.Changed("baud") {
		v, _ := f.GetInt("baud")
		opts = append(opts, serialcore.WithBaudRate(v))
	}
	if f.Changed("data-bits") {
		v, _ := f.GetInt("data-bits")
		opts = append(opts, serialcore.WithDataBits(v))
	}
	if f.Changed("stop-bits") {
		v, _ := f.GetInt("stop-bits")
		opts = append(opts, serialcore.WithStopBits(v))
	}
	if f.Changed("parity") {
		v, _ := f.GetString("parity")
		parity, err := serialcore.ParseParity(v)
		if err != nil {
			return serialcore.Config{}, err
		}
		opts = append(opts, serialcore.WithParity(parity))
	}
	if f.Changed("flow-control") {
		v, _ := f.GetString("flow-control")
		fc, err := serialcore.ParseFlowControl(v)
		if err != nil {
			return serialcore.Config{}, err
		}
		opts = append(opts, serialcore.WithFlowControl(fc))
	}
	if f.Changed("timeout") {
		v, _ := f.GetDuration("timeout")
		opts = append(opts, serialcore.WithTimeout(int(v.Milliseconds())))
	}

	for _, opt := range opts {
		if err := opt(&config); err != nil {
			return serialcore.Config{}, err
		}
	}
	return config, nil
}
