package connection

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"maps"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/climate-ip/internal/climateip/descriptor"
	"github.com/nerrad567/climate-ip/internal/climateip/render"
)

// TypeSamsung2878 is the connection type of the Samsung TLS socket protocol.
const TypeSamsung2878 = "samsung_2878"

// Samsung 2878 parameters.
const (
	ParamHost        = "host"
	ParamPort        = "port"
	ParamDUID        = "duid"
	ParamToken       = "token"
	ParamCertificate = "certificate"
)

const (
	defaultSamsungPort       = 2878
	defaultSamsungTimeoutSec = 10.0

	// drainWindow is how long a read may stay idle before pending lines are
	// considered consumed.
	drainWindow = time.Second
)

// SessionState is the lifecycle state of a Samsung socket.
type SessionState int

const (
	// StateDisconnected means no socket is open.
	StateDisconnected SessionState = iota
	// StateConnecting means the TLS socket is open and the greeting is pending.
	StateConnecting
	// StateAuthenticating means the token was sent and the reply is pending.
	StateAuthenticating
	// StateReady means the device accepted the token.
	StateReady
)

// String implements fmt.Stringer.
func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateReady:
		return "ready"
	default:
		return "disconnected"
	}
}

// Samsung2878 talks to a Samsung AC over its TLS line protocol on port 2878.
//
// The socket is opened lazily by the first Execute and reopened lazily after
// any socket error. Device state is kept as a flat attribute map: a
// DeviceState response replaces it, Status updates are merged into it.
//
// Thread Safety: all methods are safe for concurrent use. Copies returned by
// CreateUpdated share one session and are serialised on it.
type Samsung2878 struct {
	params  map[string]any
	session *samsungSession
	owner   bool
	opts    Options
}

// samsungSession is the socket and device state shared by all copies.
type samsungSession struct {
	mu      sync.Mutex
	addr    string
	duid    string
	token   string
	timeout time.Duration
	window  time.Duration
	tlsCfg  *tls.Config
	dial    DialFunc
	logger  Logger

	conn    net.Conn
	reader  *bufio.Reader
	partial string
	state   SessionState
	status  map[string]string
	closed  bool
}

// NewSamsung2878FromNode is the Factory for the samsung_2878 type.
func NewSamsung2878FromNode(node *descriptor.Node, opts Options) (Connection, error) {
	opts = opts.withDefaults()

	pnode := node.Get(KeyParams)
	if !pnode.IsMap() {
		return nil, fmt.Errorf("%s mapping is required", KeyParams)
	}
	params := copyParams(pnode.Map())

	host := paramString(params, ParamHost)
	if host == "" {
		return nil, fmt.Errorf("%s is required", ParamHost)
	}
	token := paramString(params, ParamToken)
	if token == "" {
		return nil, fmt.Errorf("%s is required", ParamToken)
	}
	port := int(paramFloat(params, ParamPort, defaultSamsungPort))

	tlsCfg, err := samsungTLSConfig(opts.resolvePath(paramString(params, ParamCertificate)))
	if err != nil {
		return nil, err
	}

	dial := opts.Dial
	if dial == nil {
		dial = dialTLS
	}

	s := &samsungSession{
		addr:    net.JoinHostPort(host, strconv.Itoa(port)),
		duid:    paramString(params, ParamDUID),
		token:   token,
		timeout: seconds(paramFloat(params, ParamTimeout, defaultSamsungTimeoutSec)),
		window:  drainWindow,
		tlsCfg:  tlsCfg,
		dial:    dial,
		logger:  opts.Logger,
		status:  make(map[string]string),
	}

	return &Samsung2878{params: params, session: s, owner: true, opts: opts}, nil
}

// samsungTLSConfig accepts the legacy suites these units still negotiate.
// The certificate file holds both the client certificate and its key.
func samsungTLSConfig(certPath string) (*tls.Config, error) {
	cfg := &tls.Config{
		InsecureSkipVerify: true, //nolint:gosec // units present a self-signed certificate
		MinVersion:         tls.VersionTLS10,
		CipherSuites: []uint16{
			tls.TLS_RSA_WITH_AES_256_CBC_SHA,
			tls.TLS_RSA_WITH_AES_128_CBC_SHA,
			tls.TLS_ECDHE_RSA_WITH_AES_256_CBC_SHA,
			tls.TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
		},
	}
	if certPath == "" {
		return cfg, nil
	}
	if _, err := os.Stat(certPath); err != nil {
		return nil, fmt.Errorf("certificate: %w", err)
	}
	pair, err := tls.LoadX509KeyPair(certPath, certPath)
	if err != nil {
		return nil, fmt.Errorf("certificate %s: %w", certPath, err)
	}
	cfg.Certificates = []tls.Certificate{pair}
	return cfg, nil
}

func dialTLS(ctx context.Context, addr string, cfg *tls.Config) (net.Conn, error) {
	d := &tls.Dialer{Config: cfg}
	return d.DialContext(ctx, "tcp", addr)
}

// Type implements Connection.
func (c *Samsung2878) Type() string { return TypeSamsung2878 }

// Params implements Connection.
func (c *Samsung2878) Params() map[string]any { return copyParams(c.params) }

// State returns the current session state.
func (c *Samsung2878) State() SessionState {
	c.session.mu.Lock()
	defer c.session.mu.Unlock()
	return c.session.state
}

// CreateUpdated implements Connection. The copy shares the socket; a duid
// in params addresses its DeviceControl requests to that unit.
func (c *Samsung2878) CreateUpdated(params *descriptor.Node) (Connection, error) {
	if params != nil && !params.IsMap() {
		return nil, fmt.Errorf("%s must be a mapping (line %d)", KeyConnectionParams, params.Line())
	}
	return &Samsung2878{
		params:  mergeParams(c.params, params.Map()),
		session: c.session,
		opts:    c.opts,
	}, nil
}

// Close implements Connection. It closes the socket and stops lazy reconnects.
func (c *Samsung2878) Close() error {
	if !c.owner {
		return nil
	}
	s := c.session
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return s.disconnect()
}

// Execute implements Connection.
//
// The rendered template, if any, must be {"Attr": id, "Value": v} or a list
// of those; it is sent as one DeviceControl request. Pending lines are then
// drained for up to one second and a copy of the attribute map is returned.
// The request carries this copy's duid parameter, or the session's when unset.
func (c *Samsung2878) Execute(ctx context.Context, tpl *render.Template, value any, deviceState any) (any, error) {
	var attrs []attrValue
	if tpl != nil {
		out, err := tpl.Render(render.Vars{DeviceState: deviceState, Value: value})
		if err != nil {
			return nil, err
		}
		if s := strings.TrimSpace(out); s != "" {
			cmd, err := decodeCommand(s)
			if err != nil {
				return nil, err
			}
			if attrs, err = controlAttributes(cmd); err != nil {
				return nil, err
			}
		}
	}

	s := c.session
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	if err := s.ensureReady(ctx); err != nil {
		return nil, err
	}

	if len(attrs) > 0 {
		duid := paramString(c.params, ParamDUID)
		if duid == "" {
			duid = s.duid
		}
		cmd := deviceControlRequest(uuid.NewString(), duid, attrs)
		if err := s.sendCommand(ctx, cmd, true); err != nil {
			return nil, err
		}
	}

	if err := s.drain(ctx); err != nil {
		return nil, err
	}

	return s.snapshot(), nil
}

// ensureReady connects and authenticates if no socket is open.
func (s *samsungSession) ensureReady(ctx context.Context) error {
	if s.conn != nil && s.state == StateReady {
		return nil
	}
	if s.conn != nil {
		_ = s.disconnect() //nolint:errcheck // half-open session is discarded
	}
	return s.connect(ctx)
}

func (s *samsungSession) connect(ctx context.Context) error {
	s.state = StateConnecting
	s.logger.Debug("connecting to samsung device", "addr", s.addr)

	dialCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	conn, err := s.dial(dialCtx, s.addr, s.tlsCfg)
	if err != nil {
		s.state = StateDisconnected
		return fmt.Errorf("%w: %s: %w", ErrConnect, s.addr, err)
	}
	s.conn = conn
	s.reader = bufio.NewReader(conn)
	s.partial = ""

	deadline := time.Now().Add(s.timeout)
	for s.state != StateReady {
		if err := ctx.Err(); err != nil {
			_ = s.disconnect() //nolint:errcheck // already failing
			return err
		}
		if time.Now().After(deadline) {
			_ = s.disconnect() //nolint:errcheck // already failing
			return fmt.Errorf("%w: %s in state %s", ErrHandshakeTimeout, s.addr, s.state)
		}
		if _, err := s.readLine(s.window); err != nil {
			_ = s.disconnect() //nolint:errcheck // already failing
			return err
		}
	}

	s.logger.Info("samsung device session ready", "addr", s.addr)

	// The DeviceState snapshot follows the auth reply.
	return s.drain(ctx)
}

// disconnect closes the socket and resets the state machine.
func (s *samsungSession) disconnect() error {
	s.state = StateDisconnected
	s.reader = nil
	s.partial = ""
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// sendCommand writes one line, reconnecting and retrying once on failure.
func (s *samsungSession) sendCommand(ctx context.Context, cmd string, retry bool) error {
	err := s.ensureReady(ctx)
	if err == nil {
		err = s.write(cmd)
	}
	if err == nil {
		return nil
	}

	_ = s.disconnect() //nolint:errcheck // socket is being replaced
	if retry && !s.closed && ctx.Err() == nil {
		s.logger.Warn("samsung command failed, reconnecting", "error", err)
		return s.sendCommand(ctx, cmd, false)
	}
	return err
}

func (s *samsungSession) write(line string) error {
	if s.conn == nil {
		return fmt.Errorf("%w: not connected", ErrConnect)
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.timeout)); err != nil {
		return err
	}
	s.logger.Debug("samsung send", "line", redactToken(line, s.token))
	_, err := s.conn.Write([]byte(line + "\r\n"))
	return err
}

// drain handles incoming lines until the socket stays idle for one window.
func (s *samsungSession) drain(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		got, err := s.readLine(s.window)
		if err != nil {
			_ = s.disconnect() //nolint:errcheck // read already failed
			return err
		}
		if !got {
			return nil
		}
	}
}

// readLine reads and handles at most one line. It reports false when the
// read timed out without a complete line.
func (s *samsungSession) readLine(wait time.Duration) (bool, error) {
	if s.conn == nil {
		return false, fmt.Errorf("%w: not connected", ErrConnect)
	}
	if err := s.conn.SetReadDeadline(time.Now().Add(wait)); err != nil {
		return false, err
	}

	chunk, err := s.reader.ReadString('\n')
	s.partial += chunk
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return false, nil
		}
		return false, fmt.Errorf("%w: %s: %w", ErrConnect, s.addr, err)
	}

	line := strings.TrimSpace(s.partial)
	s.partial = ""
	if line == "" {
		return true, nil
	}
	return true, s.handleLine(line)
}

// handleLine advances the state machine for one protocol line.
func (s *samsungSession) handleLine(line string) error {
	s.logger.Debug("samsung recv", "line", line)

	switch {
	case strings.Contains(line, markerInvalidateAccount):
		s.state = StateAuthenticating
		return s.write(authRequest(s.token))

	case strings.Contains(line, markerAuthOkay):
		s.state = StateReady
		return s.write(deviceStateRequest(s.duid))

	case strings.Contains(line, markerAuthFail):
		return fmt.Errorf("%w: %s", ErrAuth, s.addr)

	case strings.Contains(line, markerDeviceStateOkay):
		s.handleResponseDeviceState(line)

	case strings.Contains(line, markerStatusUpdate):
		maps.Copy(s.status, parseAttributes(line))
	}
	return nil
}

// handleResponseDeviceState replaces the attribute map with a snapshot.
func (s *samsungSession) handleResponseDeviceState(line string) {
	s.status = parseAttributes(line)
}

func (s *samsungSession) snapshot() map[string]any {
	out := make(map[string]any, len(s.status))
	for k, v := range s.status {
		out[k] = v
	}
	return out
}

func redactToken(line, token string) string {
	if token == "" {
		return line
	}
	return strings.ReplaceAll(line, token, "***")
}
