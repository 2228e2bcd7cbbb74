/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	serialcore "github.com/allbin/go-serialcore"
)

// runCapture reads from the port until interrupted, appending everything to
// outputPath ("-" or "" for stdout only). With showConsole the data is also
// echoed to stdout.
func runCapture(portName, outputPath string, showConsole bool, config serialcore.Config) error {
	if _, err := service.OpenSerialPort(portName, config); err != nil {
		return fmt.Errorf("failed to open port: %w", err)
	}
	defer service.CloseSerialPort()

	var sink io.Writer = os.Stdout
	toFile := outputPath != "" && outputPath != "-"
	if toFile {
		file, err := os.OpenFile(outputPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open output file: %w", err)
		}
		defer file.Close()
		sink = file
		if showConsole {
			sink = io.MultiWriter(file, os.Stdout)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(os.Stderr, "Capturing data from %s (%s)", portName, config)
	if toFile {
		fmt.Fprintf(os.Stderr, " to %s", outputPath)
	}
	fmt.Fprintf(os.Stderr, "\nPress Ctrl+C to stop\n\n")

	bytesWritten := int64(0)
	startTime := time.Now()

	for ctx.Err() == nil {
		data, err := service.ReceiveData(0)
		if err != nil {
			return fmt.Errorf("read error: %w", err)
		}
		if len(data) == 0 {
			continue
		}

		written, err := sink.Write(data)
		if err != nil {
			return fmt.Errorf("write error: %w", err)
		}
		bytesWritten += int64(written)
	}

	duration := time.Since(startTime)
	logger.Info("Capture finished",
		zap.String("port", portName),
		zap.Int64("bytes", bytesWritten),
		zap.Duration("duration", duration),
	)
	fmt.Fprintf(os.Stderr, "\nCapture complete: %d bytes written in %v\n", bytesWritten, duration.Round(time.Millisecond))
	return nil
}
