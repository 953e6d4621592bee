package ipc

import (
	"errors"
	"fmt"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"sync"

	"github.com/bnema/wayidle/internal/logger"
	"github.com/sourcegraph/conc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Handler answers the requests the control socket accepts
type Handler interface {
	HandlePoke() (StatusInfo, error)
	HandleStatus() (StatusInfo, error)
}

// SocketServer handles incoming IPC connections
type SocketServer struct {
	mu         sync.Mutex
	listener   net.Listener
	socketPath string
	handler    Handler
	conns      map[net.Conn]struct{}
	wg         conc.WaitGroup
	running    bool
}

// NewSocketServer creates a socket server listening on socketPath, or on the
// per-user default path when socketPath is empty.
func NewSocketServer(socketPath string, handler Handler) (*SocketServer, error) {
	if socketPath == "" {
		var err error
		socketPath, err = DefaultSocketPath()
		if err != nil {
			return nil, fmt.Errorf("failed to get socket path: %w", err)
		}
	}

	return &SocketServer{
		socketPath: socketPath,
		handler:    handler,
		conns:      make(map[net.Conn]struct{}),
	}, nil
}

// SocketPath returns the path the server listens on
func (s *SocketServer) SocketPath() string {
	return s.socketPath
}

// Start starts the socket server
func (s *SocketServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	// Refuse to steal the socket from a live daemon
	if IsRunning(s.socketPath) {
		return fmt.Errorf("another instance is already listening on %s", s.socketPath)
	}

	// Remove stale socket file if it exists
	if err := os.RemoveAll(s.socketPath); err != nil {
		return fmt.Errorf("failed to remove existing socket: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to create socket listener: %w", err)
	}

	// Set socket permissions (user only)
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.listener = listener
	s.running = true
	s.wg.Go(func() { s.acceptConnections(listener) })

	logger.Infof("IPC socket server started at %s", s.socketPath)
	return nil
}

// Stop closes the listener and every open connection, then waits for the
// connection goroutines to finish.
func (s *SocketServer) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.listener.Close()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()

	os.RemoveAll(s.socketPath)
	logger.Info("IPC socket server stopped")
}

func (s *SocketServer) acceptConnections(listener net.Listener) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Errorf("Failed to accept connection: %v", err)
			continue
		}

		s.mu.Lock()
		if !s.running {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Go(func() { s.handleConnection(conn) })
	}
}

// handleConnection serves requests on one connection until it closes
func (s *SocketServer) handleConnection(conn net.Conn) {
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	logger.Debug("New IPC connection established")

	for {
		msg, err := readMessage(conn)
		if err != nil {
			logger.Debugf("Connection closed or read error: %v", err)
			return
		}

		response := s.handleMessage(msg)
		if err := writeMessage(conn, response); err != nil {
			logger.Errorf("Failed to send response: %v", err)
			return
		}
	}
}

// handleMessage processes a single message and returns a response
func (s *SocketServer) handleMessage(msg *structpb.Struct) *structpb.Struct {
	var (
		status StatusInfo
		err    error
	)

	switch t := MessageType(msg); t {
	case TypePoke:
		status, err = s.handler.HandlePoke()
	case TypeStatus:
		status, err = s.handler.HandleStatus()
	default:
		return errorMessage(fmt.Sprintf("Unknown message type: %q", t))
	}
	if err != nil {
		return errorMessage(err.Error())
	}

	response, err := NewStatusResponseMessage(status)
	if err != nil {
		return errorMessage(fmt.Sprintf("Failed to encode status: %v", err))
	}
	return response
}

func errorMessage(text string) *structpb.Struct {
	msg, err := NewErrorMessage(text)
	if err != nil {
		// Only reachable with invalid UTF-8 in text
		msg, _ = NewErrorMessage("internal error")
	}
	return msg
}

// DefaultSocketPath returns $XDG_RUNTIME_DIR/wayidle.sock, falling back to
// /tmp/wayidle-<user>.sock.
func DefaultSocketPath() (string, error) {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "wayidle.sock"), nil
	}

	currentUser, err := user.Current()
	if err != nil {
		return "", fmt.Errorf("failed to get current user: %w", err)
	}
	return filepath.Join("/tmp", fmt.Sprintf("wayidle-%s.sock", currentUser.Username)), nil
}
