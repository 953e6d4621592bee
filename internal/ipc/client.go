package ipc

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/bnema/wayidle/internal/logger"
	"google.golang.org/protobuf/types/known/structpb"
)

const defaultTimeout = 5 * time.Second

// Client handles IPC communication with a running wayidle daemon
type Client struct {
	mu      sync.Mutex
	conn    net.Conn
	timeout time.Duration
}

// NewClient connects to the daemon on socketPath, or on the default path
// when socketPath is empty. It returns an error wrapping ErrNotRunning when
// nothing listens there.
func NewClient(socketPath string) (*Client, error) {
	return NewClientWithTimeout(socketPath, defaultTimeout)
}

// NewClientWithTimeout is NewClient with a per-request timeout
func NewClientWithTimeout(socketPath string, timeout time.Duration) (*Client, error) {
	if socketPath == "" {
		var err error
		socketPath, err = DefaultSocketPath()
		if err != nil {
			return nil, fmt.Errorf("failed to get socket path: %w", err)
		}
	}

	conn, err := net.DialTimeout("unix", socketPath, timeout)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ECONNREFUSED) {
			return nil, fmt.Errorf("%w (socket %s)", ErrNotRunning, socketPath)
		}
		return nil, fmt.Errorf("failed to connect to %s: %w", socketPath, err)
	}

	return &Client{conn: conn, timeout: timeout}, nil
}

// Poke reports user activity to the daemon and returns the resulting status
func (c *Client) Poke() (*StatusInfo, error) {
	msg, err := NewPokeMessage()
	if err != nil {
		return nil, fmt.Errorf("failed to create poke message: %w", err)
	}
	return c.request(msg)
}

// Status queries the daemon state
func (c *Client) Status() (*StatusInfo, error) {
	msg, err := NewStatusMessage()
	if err != nil {
		return nil, fmt.Errorf("failed to create status message: %w", err)
	}
	return c.request(msg)
}

// Close closes the connection
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close()
}

func (c *Client) request(msg *structpb.Struct) (*StatusInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return nil, fmt.Errorf("failed to set deadline: %w", err)
	}

	if err := writeMessage(c.conn, msg); err != nil {
		return nil, err
	}
	response, err := readMessage(c.conn)
	if err != nil {
		return nil, err
	}

	switch MessageType(response) {
	case TypeStatus:
		return GetStatusResponse(response)
	case TypeError:
		return nil, fmt.Errorf("server error: %s", GetErrorResponse(response))
	default:
		return nil, fmt.Errorf("unexpected response type: %q", MessageType(response))
	}
}

// IsRunning reports whether a daemon answers status queries on socketPath
func IsRunning(socketPath string) bool {
	client, err := NewClientWithTimeout(socketPath, 500*time.Millisecond)
	if err != nil {
		return false
	}
	defer client.Close()

	if _, err := client.Status(); err != nil {
		logger.Debugf("Socket %s did not answer status: %v", socketPath, err)
		return false
	}
	return true
}
