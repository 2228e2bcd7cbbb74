package models

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	serialcore "github.com/allbin/go-serialcore"
	"github.com/allbin/go-serialcore/internal/tui/components"
)

const (
	// idle delay between receive polls that returned nothing
	pollInterval = 20 * time.Millisecond
	// how often status and availability are re-read
	statusInterval = time.Second
)

// InputMode represents the current input mode (vim-like)
type InputMode int

const (
	InputModeNormal InputMode = iota
	InputModeInsert
)

func (m InputMode) String() string {
	switch m {
	case InputModeInsert:
		return "INSERT"
	default:
		return "NORMAL"
	}
}

// Results of serial operations, delivered as tea messages
type (
	OpenedMsg struct {
		Err error
	}

	ReceivedMsg struct {
		At   time.Time
		Data []byte
		Err  error
		gen  int
	}

	SentMsg struct {
		At      time.Time
		Display []byte
		Total   int
		Written int
		Err     error
	}

	FlushedMsg struct {
		OK bool
	}

	StatusMsg struct {
		State     serialcore.ConnectionState
		Available bool
	}

	pollMsg       struct{ gen int }
	statusTickMsg struct{}
)

// Entry is something for the view to show: traffic or a notice
type Entry struct {
	Data   *components.DataMsg
	Notice string
}

func notice(format string, args ...any) Entry {
	return Entry{Notice: fmt.Sprintf(format, args...)}
}

func traffic(msg components.DataMsg) Entry {
	return Entry{Data: &msg}
}

// SerialModel is the serial half of a TUI: it turns service calls into
// commands and keeps the last known connection state. The state is a cache
// refreshed only from GetConnectionStatus and marked stale after every
// operation result.
type SerialModel struct {
	svc      *serialcore.Service
	portName string
	config   serialcore.Config
	maxBytes int

	status     *serialcore.ConnectionState
	stale      bool
	refreshing bool
	available  bool
	err        error

	polling bool
	gen     int

	ready     bool
	inputMode InputMode
	rawData   []components.DataMsg
}

func NewSerialModel(svc *serialcore.Service, portName string, config serialcore.Config, maxBytes int) *SerialModel {
	return &SerialModel{
		svc:       svc,
		portName:  portName,
		config:    config,
		maxBytes:  maxBytes,
		stale:     true,
		available: true,
		inputMode: InputModeNormal,
		rawData:   make([]components.DataMsg, 0),
	}
}

func (m *SerialModel) PortName() string { return m.portName }
func (m *SerialModel) Config() serialcore.Config { return m.config }
func (m *SerialModel) Error() error { return m.err }
func (m *SerialModel) Available() bool { return m.available }
func (m *SerialModel) Stale() bool { return m.stale }
func (m *SerialModel) Polling() bool { return m.polling }
func (m *SerialModel) IsReady() bool { return m.ready }
func (m *SerialModel) SetReady(ready bool) { m.ready = ready }
func (m *SerialModel) GetRawData() []components.DataMsg { return m.rawData }
func (m *SerialModel) ClearData() { m.rawData = make([]components.DataMsg, 0) }

// Status returns the cached state, nil before the first refresh
func (m *SerialModel) Status() *serialcore.ConnectionState {
	return m.status
}

// IsConnected answers from the cache
func (m *SerialModel) IsConnected() bool {
	return m.status != nil && m.status.IsConnected
}

func (m *SerialModel) GetInputMode() InputMode { return m.inputMode }
func (m *SerialModel) SetInputMode(mode InputMode) { m.inputMode = mode }
func (m *SerialModel) IsInInsertMode() bool { return m.inputMode == InputModeInsert }

func (m *SerialModel) addRaw(msg components.DataMsg) {
	m.rawData = append(m.rawData, msg)
}

// Init opens the port and starts the status ticker
func (m *SerialModel) Init() tea.Cmd {
	return tea.Batch(m.Open(), m.statusTick())
}

func (m *SerialModel) Open() tea.Cmd {
	svc, name, config := m.svc, m.portName, m.config
	return func() tea.Msg {
		_, err := svc.OpenSerialPort(name, config)
		return OpenedMsg{Err: err}
	}
}

func (m *SerialModel) Send(send, display []byte) tea.Cmd {
	svc := m.svc
	return func() tea.Msg {
		n, err := svc.SendData(send)
		return SentMsg{At: time.Now(), Display: display, Total: len(send), Written: n, Err: err}
	}
}

func (m *SerialModel) Flush() tea.Cmd {
	svc := m.svc
	return func() tea.Msg {
		return FlushedMsg{OK: svc.FlushBuffer()}
	}
}

func (m *SerialModel) RefreshStatus() tea.Cmd {
	if m.refreshing {
		return nil
	}
	m.refreshing = true
	svc := m.svc
	return func() tea.Msg {
		state := svc.GetConnectionStatus()
		available := svc.CheckPortAvailability("")
		return StatusMsg{State: state, Available: available}
	}
}

func (m *SerialModel) receive() tea.Cmd {
	svc, maxBytes, gen := m.svc, m.maxBytes, m.gen
	return func() tea.Msg {
		data, err := svc.ReceiveData(maxBytes)
		return ReceivedMsg{At: time.Now(), Data: data, Err: err, gen: gen}
	}
}

func (m *SerialModel) statusTick() tea.Cmd {
	return tea.Tick(statusInterval, func(time.Time) tea.Msg { return statusTickMsg{} })
}

func (m *SerialModel) startPolling() tea.Cmd {
	m.gen++
	m.polling = true
	return m.receive()
}

// invalidate marks the cached state stale and asks for a fresh one
func (m *SerialModel) invalidate() tea.Cmd {
	m.stale = true
	return m.RefreshStatus()
}

// Update applies serial results and timers. It returns the follow-up
// command and what the view should append.
func (m *SerialModel) Update(msg tea.Msg) (tea.Cmd, []Entry) {
	switch msg := msg.(type) {
	case OpenedMsg:
		cmds := []tea.Cmd{m.invalidate()}
		if msg.Err != nil {
			m.err = msg.Err
			return tea.Batch(cmds...), []Entry{notice("Open failed: %v", msg.Err)}
		}
		m.err = nil
		cmds = append(cmds, m.startPolling())
		return tea.Batch(cmds...), []Entry{notice("Connected to %s (%s)", m.portName, m.config)}

	case ReceivedMsg:
		if msg.gen != m.gen || !m.polling {
			return nil, nil
		}
		refresh := m.invalidate()
		if msg.Err != nil {
			m.polling = false
			m.err = msg.Err
			return refresh, []Entry{notice("Receive failed: %v", msg.Err)}
		}
		var entries []Entry
		next := m.receive()
		if len(msg.Data) > 0 {
			data := components.DataMsg{Timestamp: msg.At, Data: msg.Data}
			m.addRaw(data)
			entries = append(entries, traffic(data))
		} else {
			gen := m.gen
			next = tea.Tick(pollInterval, func(time.Time) tea.Msg { return pollMsg{gen: gen} })
		}
		return tea.Batch(refresh, next), entries

	case pollMsg:
		if msg.gen != m.gen || !m.polling {
			return nil, nil
		}
		return m.receive(), nil

	case SentMsg:
		refresh := m.invalidate()
		data := components.DataMsg{Timestamp: msg.At, Data: msg.Display, IsTX: true}
		switch {
		case msg.Err != nil:
			data.Status = components.TXError
			data.Note = msg.Err.Error()
			m.err = msg.Err
		case msg.Written < msg.Total:
			data.Status = components.TXPartial
			data.Note = fmt.Sprintf("%d/%d bytes", msg.Written, msg.Total)
		default:
			data.Status = components.TXWritten
		}
		m.addRaw(data)
		return refresh, []Entry{traffic(data)}

	case FlushedMsg:
		refresh := m.invalidate()
		if !msg.OK {
			return refresh, []Entry{notice("Nothing to flush")}
		}
		return refresh, []Entry{notice("Buffers flushed")}

	case StatusMsg:
		wasConnected := m.IsConnected()
		state := msg.State
		m.status = &state
		m.stale = false
		m.refreshing = false
		m.available = msg.Available

		if wasConnected && !state.IsConnected {
			m.polling = false
			return nil, []Entry{notice("Connection to %s lost, press r to reconnect", m.portName)}
		}
		return nil, nil

	case statusTickMsg:
		return tea.Batch(m.RefreshStatus(), m.statusTick()), nil
	}

	return nil, nil
}

// Reconnect reopens the port when nothing is being polled
func (m *SerialModel) Reconnect() tea.Cmd {
	if m.polling {
		return nil
	}
	return m.Open()
}

// Cleanup closes the port. It is safe to call after the program exits.
func (m *SerialModel) Cleanup() {
	m.polling = false
	m.svc.CloseSerialPort()
}
