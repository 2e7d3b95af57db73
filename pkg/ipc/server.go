package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/sunlightlinux/slgreet/pkg/logging"
)

// Server accepts greeter connections on a Unix socket. Each connection is
// served on its own goroutine; decoded requests are handed to the event
// loop through Requests.
type Server struct {
	sockPath string
	logger   *logging.Logger
	requests chan *Request

	// Socket owner; -1 leaves it unchanged.
	uid, gid int

	listener *net.UnixListener
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	mu    sync.Mutex
	conns map[*Connection]struct{}
}

// NewServer creates a server for sockPath.
func NewServer(sockPath string, logger *logging.Logger) *Server {
	return &Server{
		sockPath: sockPath,
		logger:   logger,
		requests: make(chan *Request),
		uid:      -1,
		gid:      -1,
		conns:    make(map[*Connection]struct{}),
	}
}

// SetOwner makes the socket owned by uid:gid once it is created, so that
// an unprivileged greeter can connect. Call before Start.
func (s *Server) SetOwner(uid, gid int) {
	s.uid, s.gid = uid, gid
}

// SocketPath returns the path the server listens on.
func (s *Server) SocketPath() string {
	return s.sockPath
}

// Requests delivers each decoded request. The connection that sent it
// blocks until Respond is called.
func (s *Server) Requests() <-chan *Request {
	return s.requests
}

// Start binds the socket, replacing a stale one, and begins accepting.
func (s *Server) Start(ctx context.Context) error {
	if err := os.Remove(s.sockPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing stale socket: %w", err)
	}

	l, err := net.ListenUnix("unix", &net.UnixAddr{Name: s.sockPath, Net: "unix"})
	if err != nil {
		return err
	}
	if err := s.restrict(); err != nil {
		l.Close()
		return err
	}

	s.listener = l
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.acceptLoop()

	s.logger.Info("Request socket listening on %s", s.sockPath)
	return nil
}

// restrict limits the socket to its owner.
func (s *Server) restrict() error {
	if err := os.Chmod(s.sockPath, 0600); err != nil {
		return err
	}
	if s.uid < 0 && s.gid < 0 {
		return nil
	}
	return os.Chown(s.sockPath, s.uid, s.gid)
}

// Stop closes the listener and every connection, waits for their
// goroutines and removes the socket file. Connections waiting on the event
// loop are released without a reply.
func (s *Server) Stop() error {
	if s.listener == nil {
		return nil
	}
	s.cancel()
	err := s.listener.Close()

	s.mu.Lock()
	for c := range s.conns {
		c.close()
	}
	s.mu.Unlock()
	s.wg.Wait()

	if rerr := os.Remove(s.sockPath); rerr != nil && !errors.Is(rerr, os.ErrNotExist) && err == nil {
		err = rerr
	}
	return err
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.AcceptUnix()
		if errors.Is(err, net.ErrClosed) || s.ctx.Err() != nil {
			if conn != nil {
				conn.Close()
			}
			return
		}
		if err != nil {
			s.logger.Error("Request socket accept error: %v", err)
			continue
		}
		s.track(newConnection(s, conn))
	}
}

// track serves c until it closes.
func (s *Server) track(c *Connection) {
	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		c.close()
		return
	}
	s.conns[c] = struct{}{}
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.conns, c)
			s.mu.Unlock()
		}()
		c.serve()
	}()
}

// submit hands req to the event loop and waits for its outcome.
func (s *Server) submit(req *Request) error {
	req.reply = make(chan error, 1)
	select {
	case s.requests <- req:
	case <-s.ctx.Done():
		return errServerStopped
	}
	select {
	case err := <-req.reply:
		return err
	case <-s.ctx.Done():
		return errServerStopped
	}
}
