// Package command exposes the serial service as a line-delimited JSON
// request/response protocol, one operation per request.
package command

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	serialcore "github.com/allbin/go-serialcore"
)

// Command names accepted in Request.Command
const (
	GetSerialPorts        = "get_serial_ports"
	OpenSerialPort        = "open_serial_port"
	CloseSerialPort       = "close_serial_port"
	GetConnectionStatus   = "get_connection_status"
	SendData              = "send_data"
	ReceiveData           = "receive_data"
	FlushBuffer           = "flush_buffer"
	CheckPortAvailability = "check_port_availability"
)

// Error kinds for requests that never reach the service
const (
	KindInvalidRequest = "InvalidRequest"
	KindUnknownCommand = "UnknownCommand"
)

// Request is one call across the boundary
type Request struct {
	ID      json.RawMessage `json:"id,omitempty"`
	Command string          `json:"command"`
	Args    json.RawMessage `json:"args,omitempty"`
}

// Response carries either a result or an error, never both
type Response struct {
	ID     json.RawMessage `json:"id,omitempty"`
	OK     bool            `json:"ok"`
	Result any             `json:"result,omitempty"`
	Error  *ErrorBody      `json:"error,omitempty"`
}

// ErrorBody names the failure kind so callers can branch on it
type ErrorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type openArgs struct {
	PortName string          `json:"port_name"`
	Config   json.RawMessage `json:"config,omitempty"`
}

type sendArgs struct {
	Data     string `json:"data"`
	Encoding string `json:"encoding,omitempty"`
}

type receiveArgs struct {
	MaxBytes *int `json:"max_bytes,omitempty"`
}

type availabilityArgs struct {
	PortName string `json:"port_name,omitempty"`
}

// ReceiveResult is the payload of receive_data
type ReceiveResult struct {
	Data  string `json:"data"` // base64
	Bytes int    `json:"bytes"`
}

// Dispatcher maps requests onto a Service
type Dispatcher struct {
	svc    *serialcore.Service
	logger *zap.Logger
}

// NewDispatcher creates a dispatcher for svc
func NewDispatcher(svc *serialcore.Service, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{svc: svc, logger: logger}
}

// requestError is a malformed request, reported with its own kind
type requestError struct {
	kind string
	err  error
}

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

func invalidRequest(format string, args ...any) error {
	return &requestError{kind: KindInvalidRequest, err: fmt.Errorf(format, args...)}
}

// Handle runs one request and always produces a response
func (d *Dispatcher) Handle(req Request) Response {
	result, err := d.dispatch(req)
	if err != nil {
		d.logger.Debug("Command failed",
			zap.String("command", req.Command),
			zap.Error(err),
		)
		return Response{ID: req.ID, Error: errorBody(err)}
	}
	return Response{ID: req.ID, OK: true, Result: result}
}

func (d *Dispatcher) dispatch(req Request) (any, error) {
	switch req.Command {
	case GetSerialPorts:
		return d.svc.GetSerialPorts()

	case OpenSerialPort:
		var args openArgs
		if err := decodeArgs(req.Args, &args); err != nil {
			return nil, err
		}
		config, err := decodeConfig(args.Config)
		if err != nil {
			return nil, err
		}
		return d.svc.OpenSerialPort(args.PortName, config)

	case CloseSerialPort:
		return d.svc.CloseSerialPort(), nil

	case GetConnectionStatus:
		return d.svc.GetConnectionStatus(), nil

	case SendData:
		var args sendArgs
		if err := decodeArgs(req.Args, &args); err != nil {
			return nil, err
		}
		data, err := decodePayload(args.Data, args.Encoding)
		if err != nil {
			return nil, err
		}
		return d.svc.SendData(data)

	case ReceiveData:
		var args receiveArgs
		if err := decodeArgs(req.Args, &args); err != nil {
			return nil, err
		}
		maxBytes := 0
		if args.MaxBytes != nil {
			maxBytes = *args.MaxBytes
		}
		data, err := d.svc.ReceiveData(maxBytes)
		if err != nil {
			return nil, err
		}
		return ReceiveResult{Data: base64.StdEncoding.EncodeToString(data), Bytes: len(data)}, nil

	case FlushBuffer:
		return d.svc.FlushBuffer(), nil

	case CheckPortAvailability:
		var args availabilityArgs
		if err := decodeArgs(req.Args, &args); err != nil {
			return nil, err
		}
		return d.svc.CheckPortAvailability(args.PortName), nil

	default:
		return nil, &requestError{kind: KindUnknownCommand, err: fmt.Errorf("unknown command %q", req.Command)}
	}
}

// wireConfig accepts "timeout" as an alias for "timeout_ms"
type wireConfig struct {
	serialcore.Config
	TimeoutAlias *int `json:"timeout,omitempty"`
}

// decodeConfig merges raw over the defaults. Unknown keys are rejected so
// a misspelled field is not silently ignored.
func decodeConfig(raw json.RawMessage) (serialcore.Config, error) {
	wire := wireConfig{Config: serialcore.DefaultConfig()}
	if len(raw) == 0 || string(raw) == "null" {
		return wire.Config, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&wire); err != nil {
		if serialcore.KindOf(err) == serialcore.KindUnknown {
			err = fmt.Errorf("%w: %v", serialcore.ErrInvalidConfig, err)
		}
		return serialcore.Config{}, err
	}

	if wire.TimeoutAlias != nil {
		var keys map[string]json.RawMessage
		if err := json.Unmarshal(raw, &keys); err == nil {
			if _, ok := keys["timeout_ms"]; ok {
				return serialcore.Config{}, fmt.Errorf("%w: both timeout and timeout_ms given", serialcore.ErrInvalidConfig)
			}
		}
		wire.Config.TimeoutMS = *wire.TimeoutAlias
	}
	return wire.Config, nil
}

func decodeArgs(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return invalidRequest("invalid args: %v", err)
	}
	return nil
}

// decodePayload turns send_data's text into bytes. The default is the
// text itself as UTF-8.
func decodePayload(data, encoding string) ([]byte, error) {
	switch strings.ToLower(encoding) {
	case "", "utf8", "utf-8", "text":
		return []byte(data), nil
	case "hex":
		cleaned := strings.NewReplacer(" ", "", ":", "", "\n", "", "\t", "").Replace(data)
		cleaned = strings.TrimPrefix(strings.TrimPrefix(cleaned, "0x"), "0X")
		b, err := hex.DecodeString(cleaned)
		if err != nil {
			return nil, invalidRequest("invalid hex data: %v", err)
		}
		return b, nil
	case "base64":
		b, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			return nil, invalidRequest("invalid base64 data: %v", err)
		}
		return b, nil
	default:
		return nil, invalidRequest("unknown encoding %q", encoding)
	}
}

func errorBody(err error) *ErrorBody {
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		return &ErrorBody{Kind: reqErr.kind, Message: err.Error()}
	}
	return &ErrorBody{Kind: serialcore.KindOf(err).String(), Message: err.Error()}
}
