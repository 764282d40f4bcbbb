// Package stream maintains the live push channels to the control plane
// and recovers transparently from transport drops.
package stream

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/cmxela/thinkube-cicd-monitor/internal/api"
	"github.com/cmxela/thinkube-cicd-monitor/internal/models"
)

// State of a push channel.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateOpen       State = "open"
	StateClosed     State = "closed"
	StateAbandoned  State = "abandoned"
)

// Policy controls reconnect pacing for one socket.
type Policy struct {
	// BaseDelay is the delay before the first reconnect attempt.
	BaseDelay time.Duration
	// MaxScale caps how far the delay grows with consecutive failures,
	// as a multiple of BaseDelay. 1 keeps the delay fixed.
	MaxScale int
	// MaxAttempts abandons the channel after this many consecutive
	// failures. 0 retries forever.
	MaxAttempts int
}

// FixedPolicy reconnects every five seconds without giving up.
// Per-pipeline channels use it.
func FixedPolicy() Policy {
	return Policy{BaseDelay: 5 * time.Second, MaxScale: 1}
}

// ScaledPolicy grows the delay with consecutive failures up to five
// times the base and abandons the channel after ten attempts. The
// global events channel uses it.
func ScaledPolicy() Policy {
	return Policy{BaseDelay: 5 * time.Second, MaxScale: 5, MaxAttempts: 10}
}

func (p Policy) delay(attempt int) time.Duration {
	scale := attempt
	if scale < 1 {
		scale = 1
	}
	if p.MaxScale > 0 && scale > p.MaxScale {
		scale = p.MaxScale
	}
	return p.BaseDelay * time.Duration(scale)
}

// Socket is one push channel. It dials, reads events, and owns the
// single reconnect timer for the channel; closing the socket cancels
// the timer so no callback can fire afterwards.
type Socket struct {
	url     string
	header  http.Header
	policy  Policy
	handler func(models.PipelineEvent)
	dialer  *websocket.Dialer

	// OnConnect and OnAbandon, when set before Connect, signal a
	// successful open and reconnect exhaustion respectively.
	OnConnect func()
	OnAbandon func()

	mu       sync.Mutex
	conn     *websocket.Conn
	timer    *time.Timer
	attempts int
	state    State
	wanted   bool
}

// NewSocket creates a socket for url. The handler receives every
// successfully parsed event; malformed messages are dropped with a log
// line and no other side effects.
func NewSocket(url string, header http.Header, policy Policy, handler func(models.PipelineEvent)) *Socket {
	return &Socket{
		url:     url,
		header:  header,
		policy:  policy,
		handler: handler,
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		state:   StateIdle,
	}
}

// Connect opens the channel asynchronously. Calling it on a socket that
// is already wanted is a no-op.
func (s *Socket) Connect() {
	s.mu.Lock()
	if s.wanted {
		s.mu.Unlock()
		return
	}
	s.wanted = true
	s.attempts = 0
	s.state = StateConnecting
	s.mu.Unlock()

	go s.run()
}

// Close tears the channel down: it cancels any pending reconnect timer,
// sends a normal close frame and forgets the connection. Safe to call
// any number of times.
func (s *Socket) Close() {
	s.mu.Lock()
	s.wanted = false
	if s.state != StateAbandoned {
		s.state = StateClosed
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		deadline := time.Now().Add(time.Second)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		conn.Close()
	}
}

// State returns the channel's current state.
func (s *Socket) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Socket) run() {
	conn, resp, err := s.dialer.Dial(s.url, s.header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		logrus.WithError(err).WithField("url", s.url).Warn("Push channel dial failed")
		s.scheduleReconnect()
		return
	}

	s.mu.Lock()
	if !s.wanted {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.conn = conn
	s.attempts = 0
	s.state = StateOpen
	onConnect := s.OnConnect
	s.mu.Unlock()

	logrus.WithField("url", s.url).Debug("Push channel open")
	if onConnect != nil {
		onConnect()
	}
	s.readLoop(conn)
}

func (s *Socket) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.handleClosed(err)
			return
		}
		ev, derr := api.DecodeEvent(data)
		if derr != nil {
			logrus.WithError(derr).Debug("Dropping malformed push message")
			continue
		}
		if s.handler != nil {
			s.handler(ev)
		}
	}
}

func (s *Socket) handleClosed(err error) {
	s.mu.Lock()
	if !s.wanted {
		s.mu.Unlock()
		return
	}
	s.conn = nil

	// A normal close code means the server finished the stream on
	// purpose; only unexpected closes reconnect.
	if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		s.wanted = false
		s.state = StateClosed
		s.mu.Unlock()
		logrus.WithField("url", s.url).Debug("Push channel ended")
		return
	}
	s.mu.Unlock()

	logrus.WithError(err).WithField("url", s.url).Warn("Push channel lost")
	s.scheduleReconnect()
}

func (s *Socket) scheduleReconnect() {
	s.mu.Lock()
	if !s.wanted {
		s.mu.Unlock()
		return
	}

	s.attempts++
	if s.policy.MaxAttempts > 0 && s.attempts > s.policy.MaxAttempts {
		s.wanted = false
		s.state = StateAbandoned
		onAbandon := s.OnAbandon
		s.mu.Unlock()

		logrus.WithField("url", s.url).Warn("Giving up on push channel")
		if onAbandon != nil {
			onAbandon()
		}
		return
	}

	s.state = StateConnecting
	delay := s.policy.delay(s.attempts)
	s.timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		if !s.wanted {
			s.mu.Unlock()
			return
		}
		s.timer = nil
		s.mu.Unlock()
		s.run()
	})
	s.mu.Unlock()
}
