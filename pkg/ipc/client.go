package ipc

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/sunlightlinux/slgreet/pkg/secret"
	"github.com/sunlightlinux/slgreet/pkg/shutdown"
)

// ErrBadRequest is returned when the daemon rejects a request as
// malformed.
var ErrBadRequest = errors.New("request rejected as malformed")

// ReplyError is a request the daemon understood but refused.
type ReplyError struct {
	Kind        string
	Description string
}

func (e *ReplyError) Error() string {
	return e.Description
}

// DefaultTimeout bounds one request/reply exchange.
const DefaultTimeout = 30 * time.Second

// Client talks to the daemon's request socket.
type Client struct {
	conn    net.Conn
	Timeout time.Duration
}

// Dial connects to the socket at path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 5*time.Second)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, Timeout: DefaultTimeout}, nil
}

// SocketFromEnv returns the socket path handed to the greeter, or
// DefaultSocketPath.
func SocketFromEnv() string {
	if p := os.Getenv(EnvSocket); p != "" {
		return p
	}
	return DefaultSocketPath
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Version queries the protocol version.
func (c *Client) Version() (uint16, error) {
	rply, payload, err := c.roundTrip(CmdQueryVersion, nil)
	if err != nil {
		return 0, err
	}
	if rply != RplyVersion {
		return 0, fmt.Errorf("unexpected reply %d to version query", rply)
	}
	return decodeVersion(payload)
}

// Greet asks for the greeter to be started.
func (c *Client) Greet() error {
	return c.expectOK(CmdGreet, nil)
}

// Login submits req. req.Password is scrubbed once sent.
func (c *Client) Login(req *LoginRequest) error {
	defer secret.Scrub(req.Password)

	payload, err := marshal(req)
	if err != nil {
		return err
	}
	defer secret.Scrub(payload)
	return c.expectOK(CmdLogin, payload)
}

// Shutdown asks for action to be carried out.
func (c *Client) Shutdown(action shutdown.Action) error {
	payload, err := marshal(ShutdownRequest{Action: action.String()})
	if err != nil {
		return err
	}
	return c.expectOK(CmdShutdown, payload)
}

func (c *Client) expectOK(cmd uint8, payload []byte) error {
	rply, data, err := c.roundTrip(cmd, payload)
	if err != nil {
		return err
	}
	switch rply {
	case RplyOK:
		return nil
	case RplyBadReq:
		return ErrBadRequest
	case RplyError:
		var er ErrorReply
		if err := unmarshal(data, &er); err != nil {
			return fmt.Errorf("decoding error reply: %w", err)
		}
		return &ReplyError{Kind: er.Kind, Description: er.Description}
	default:
		return fmt.Errorf("unexpected reply %d", rply)
	}
}

func (c *Client) roundTrip(cmd uint8, payload []byte) (uint8, []byte, error) {
	if c.Timeout > 0 {
		c.conn.SetDeadline(time.Now().Add(c.Timeout))
	}
	if err := WritePacket(c.conn, cmd, payload); err != nil {
		return 0, nil, err
	}
	return ReadPacket(c.conn)
}
