package ipc

import (
	"errors"
	"io"
	"net"

	"golang.org/x/sys/unix"

	"github.com/sunlightlinux/slgreet/pkg/orchestrator"
	"github.com/sunlightlinux/slgreet/pkg/secret"
	"github.com/sunlightlinux/slgreet/pkg/shutdown"
)

// Longest error description sent back to a client.
const maxDescription = 1024

// Connection represents a single client connection.
type Connection struct {
	server *Server
	conn   net.Conn
}

func newConnection(server *Server, conn net.Conn) *Connection {
	return &Connection{server: server, conn: conn}
}

func (c *Connection) close() {
	c.conn.Close()
}

func (c *Connection) serve() {
	defer c.close()

	if cred, err := peerCred(c.conn); err == nil {
		c.server.logger.Debug("Request connection from PID %d (UID %d)", cred.Pid, cred.Uid)
	}

	for {
		select {
		case <-c.server.ctx.Done():
			return
		default:
		}

		cmd, payload, err := ReadPacket(c.conn)
		if err != nil {
			if err != io.EOF {
				c.server.logger.Debug("Request connection read error: %v", err)
			}
			return
		}

		if err := c.dispatch(cmd, payload); err != nil {
			c.server.logger.Debug("Request dispatch error: %v", err)
			return
		}
	}
}

func (c *Connection) dispatch(cmd uint8, payload []byte) error {
	switch cmd {
	case CmdQueryVersion:
		return WritePacket(c.conn, RplyVersion, encodeVersion(ProtocolVersion))
	case CmdGreet:
		return c.submit(&Request{Kind: KindGreet})
	case CmdLogin:
		return c.handleLogin(payload)
	case CmdShutdown:
		return c.handleShutdown(payload)
	default:
		return WritePacket(c.conn, RplyBadReq, nil)
	}
}

func (c *Connection) handleLogin(payload []byte) error {
	defer secret.Scrub(payload)

	var req LoginRequest
	if err := unmarshal(payload, &req); err != nil {
		secret.Scrub(req.Password)
		c.server.logger.Debug("Malformed login request: %v", err)
		return WritePacket(c.conn, RplyBadReq, nil)
	}
	if req.Username == "" || len(req.Command) == 0 || (req.VT != nil && *req.VT <= 0) {
		secret.Scrub(req.Password)
		return WritePacket(c.conn, RplyBadReq, nil)
	}

	// The orchestrator scrubs the password once it has taken a copy.
	return c.submit(&Request{Kind: KindLogin, Login: &req})
}

func (c *Connection) handleShutdown(payload []byte) error {
	var req ShutdownRequest
	if err := unmarshal(payload, &req); err != nil {
		return WritePacket(c.conn, RplyBadReq, nil)
	}
	action, err := shutdown.ParseAction(req.Action)
	if err != nil {
		return WritePacket(c.conn, RplyBadReq, nil)
	}
	return c.submit(&Request{Kind: KindShutdown, Action: action})
}

// submit waits for the event loop and writes its verdict.
func (c *Connection) submit(req *Request) error {
	err := c.server.submit(req)
	if errors.Is(err, errServerStopped) {
		return err
	}
	if err == nil {
		return WritePacket(c.conn, RplyOK, nil)
	}

	desc := err.Error()
	if len(desc) > maxDescription {
		desc = desc[:maxDescription]
	}
	payload, merr := marshal(ErrorReply{Kind: orchestrator.KindOf(err), Description: desc})
	if merr != nil {
		return merr
	}
	return WritePacket(c.conn, RplyError, payload)
}

// peerCred returns the credentials of the process on the other end of a
// Unix socket.
func peerCred(conn net.Conn) (*unix.Ucred, error) {
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return nil, errors.New("not a unix socket")
	}
	raw, err := uc.SyscallConn()
	if err != nil {
		return nil, err
	}
	var cred *unix.Ucred
	var credErr error
	err = raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if err != nil {
		return nil, err
	}
	return cred, credErr
}
