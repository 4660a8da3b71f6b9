package rtc

import (
	"context"
	"fmt"
	"sync"

	"github.com/loquihq/loqui/pkg/audio"
)

// Compile-time interface checks.
var (
	_ PeerTransport  = (*MockTransport)(nil)
	_ ControlChannel = (*MemoryControlChannel)(nil)
)

// MockTransport is an in-memory [PeerTransport]. It is the default
// transport for the alpha build and the workhorse of session tests: tests
// script negotiation failures, emit remote tracks, and inject control
// messages, then assert on call counters to verify resource handling.
type MockTransport struct {
	// OfferErr, AnswerErr, and ControlErr, when non-nil, are returned by
	// the corresponding methods to simulate negotiation failures.
	OfferErr   error
	AnswerErr  error
	ControlErr error

	mu           sync.Mutex
	track        *LocalTrack
	onRemote     func(<-chan audio.Frame)
	onClose      func(error)
	control      *MemoryControlChannel
	closed       bool
	closeCount   int
	offerCount   int
	answeredSDP  string
	iceCandidate []string
}

// NewMockTransport creates a mock transport with an in-memory control
// channel.
func NewMockTransport() *MockTransport {
	return &MockTransport{control: NewMemoryControlChannel()}
}

// CreateOffer implements [PeerTransport].
func (m *MockTransport) CreateOffer(_ context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.OfferErr != nil {
		return "", m.OfferErr
	}
	m.offerCount++
	return "v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\ns=Loqui Audio\r\n", nil
}

// AcceptAnswer implements [PeerTransport].
func (m *MockTransport) AcceptAnswer(_ context.Context, sdp string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AnswerErr != nil {
		return m.AnswerErr
	}
	m.answeredSDP = sdp
	return nil
}

// AddICECandidate implements [PeerTransport].
func (m *MockTransport) AddICECandidate(candidate string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.iceCandidate = append(m.iceCandidate, candidate)
	return nil
}

// AttachLocalTrack implements [PeerTransport].
func (m *MockTransport) AttachLocalTrack(track *LocalTrack) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("rtc: transport closed")
	}
	m.track = track
	return nil
}

// OnRemoteTrack implements [PeerTransport].
func (m *MockTransport) OnRemoteTrack(fn func(<-chan audio.Frame)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onRemote = fn
}

// ControlChannel implements [PeerTransport].
func (m *MockTransport) ControlChannel(_ context.Context) (ControlChannel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ControlErr != nil {
		return nil, m.ControlErr
	}
	return m.control, nil
}

// OnClose implements [PeerTransport].
func (m *MockTransport) OnClose(fn func(error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onClose = fn
}

// Close implements [PeerTransport]. Idempotent.
func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCount++
	if m.closed {
		return nil
	}
	m.closed = true
	return m.control.Close()
}

// EmitRemoteTrack simulates the arrival of the remote party's audio track.
// Returns the writable frame channel, or nil when no handler is registered.
func (m *MockTransport) EmitRemoteTrack() chan audio.Frame {
	m.mu.Lock()
	fn := m.onRemote
	m.mu.Unlock()
	if fn == nil {
		return nil
	}
	ch := make(chan audio.Frame, 16)
	go fn(ch)
	return ch
}

// EmitDisconnect simulates an unexpected remote disconnect: the transport
// closes and the OnClose callback fires with err. No-op once closed.
func (m *MockTransport) EmitDisconnect(err error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	fn := m.onClose
	control := m.control
	m.mu.Unlock()

	_ = control.Close()
	if fn != nil {
		fn(err)
	}
}

// InjectControlMessage delivers a control message as if it arrived from
// the remote endpoint.
func (m *MockTransport) InjectControlMessage(data []byte) {
	m.control.Inject(data)
}

// Closed reports whether Close has been called.
func (m *MockTransport) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// CloseCalls returns the number of Close invocations.
func (m *MockTransport) CloseCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCount
}

// AttachedTrack returns the track bound via AttachLocalTrack, if any.
func (m *MockTransport) AttachedTrack() *LocalTrack {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.track
}

// AcceptedAnswer returns the SDP answer applied via AcceptAnswer.
func (m *MockTransport) AcceptedAnswer() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.answeredSDP
}

// MemoryControlChannel is an in-process [ControlChannel]. Inbound messages
// arriving before a handler is registered are buffered and flushed in
// order, mirroring the no-early-drop guarantee of the wire implementations.
type MemoryControlChannel struct {
	mu      sync.Mutex
	handler func([]byte)
	pending [][]byte
	sent    [][]byte
	closed  bool
}

// NewMemoryControlChannel creates an empty in-process control channel.
func NewMemoryControlChannel() *MemoryControlChannel {
	return &MemoryControlChannel{}
}

// OnMessage implements [ControlChannel].
func (c *MemoryControlChannel) OnMessage(fn func([]byte)) {
	c.mu.Lock()
	c.handler = fn
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	if fn == nil {
		return
	}
	for _, msg := range pending {
		fn(msg)
	}
}

// Send implements [ControlChannel]. Outbound messages are recorded for
// test inspection.
func (c *MemoryControlChannel) Send(_ context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("rtc: control channel closed")
	}
	c.sent = append(c.sent, data)
	return nil
}

// Close implements [ControlChannel]. Idempotent.
func (c *MemoryControlChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Inject delivers an inbound message to the handler, or buffers it when no
// handler is registered yet. Messages are dropped after Close.
func (c *MemoryControlChannel) Inject(data []byte) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	fn := c.handler
	if fn == nil {
		c.pending = append(c.pending, data)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	fn(data)
}

// Sent returns a copy of all outbound messages.
func (c *MemoryControlChannel) Sent() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.sent))
	copy(out, c.sent)
	return out
}
