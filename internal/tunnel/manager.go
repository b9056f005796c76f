// Package tunnel establishes authenticated SSH port forwards in front of the
// services that are only reachable through the managed bastion. Establishment
// is all-or-nothing: a partially tunneled state is never left running.
package tunnel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"

	"golang.org/x/crypto/ssh"

	"github.com/fystack/explorer-api/pkg/common/config"
	"github.com/fystack/explorer-api/pkg/common/logger"
)

var ErrNotEstablished = errors.New("tunnel not established")

// RemoteDialer opens connections on the far side of the tunnel. *ssh.Client
// satisfies it; tests substitute fakes.
type RemoteDialer interface {
	Dial(network, addr string) (net.Conn, error)
	Close() error
}

// ConnectFunc authenticates to the bastion and returns the remote dialer.
type ConnectFunc func(cfg config.TunnelConfig) (RemoteDialer, error)

// ListenFunc binds a local forward port.
type ListenFunc func(network, addr string) (net.Listener, error)

type Manager struct {
	cfg     config.TunnelConfig
	connect ConnectFunc
	listen  ListenFunc

	mu       sync.Mutex
	dialer   RemoteDialer
	forwards []*forward
}

type Option func(*Manager)

// WithConnectFunc overrides how the bastion connection is opened.
func WithConnectFunc(fn ConnectFunc) Option {
	return func(m *Manager) { m.connect = fn }
}

// WithListenFunc overrides how local forward ports are bound.
func WithListenFunc(fn ListenFunc) Option {
	return func(m *Manager) { m.listen = fn }
}

func NewManager(cfg config.TunnelConfig, opts ...Option) *Manager {
	m := &Manager{
		cfg:     cfg,
		connect: sshConnect,
		listen:  net.Listen,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Establish authenticates once and opens every configured forward. If any
// forward fails for a reason other than a transient port conflict, everything
// opened so far is torn down and the error is returned.
func (m *Manager) Establish(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dialer != nil {
		return fmt.Errorf("tunnel already established")
	}

	dialer, err := m.connect(m.cfg)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", m.cfg.Host, err)
	}

	forwards := make([]*forward, 0, len(m.cfg.Forwards))
	for _, fc := range m.cfg.Forwards {
		fw := newForward(Spec{
			Name:       fc.Name,
			LocalAddr:  fc.LocalAddr,
			RemoteAddr: fc.RemoteAddr,
		}, dialer)

		if err := fw.open(m.listen, m.cfg.RetryAttempts, m.cfg.RetryDelay); err != nil {
			for _, opened := range forwards {
				opened.close()
			}
			_ = dialer.Close()
			return fmt.Errorf("open forward %q: %w", fc.Name, err)
		}

		logger.Info("Tunnel forward established",
			"forward", fc.Name,
			"local", fc.LocalAddr,
			"remote", fc.RemoteAddr)
		forwards = append(forwards, fw)
	}

	m.dialer = dialer
	m.forwards = forwards
	return nil
}

// Reconnect tears down all forwards and re-establishes them from scratch.
// Callers invoke it after detecting an unexpected close; closed forwards are
// never reused.
func (m *Manager) Reconnect(ctx context.Context) error {
	if !m.Established() {
		return ErrNotEstablished
	}
	m.Close()
	return m.Establish(ctx)
}

// Close shuts every forward and the bastion connection. Idempotent.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, fw := range m.forwards {
		fw.close()
	}
	if m.dialer != nil {
		_ = m.dialer.Close()
	}
	m.forwards = nil
	m.dialer = nil
}

// ForwardStates reports the state of each forward by name.
func (m *Manager) ForwardStates() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()

	states := make(map[string]string, len(m.forwards))
	for _, fw := range m.forwards {
		states[fw.spec.Name] = fw.State()
	}
	return states
}

// Established reports whether the tunnel currently holds an open connection.
func (m *Manager) Established() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dialer != nil
}

func sshConnect(cfg config.TunnelConfig) (RemoteDialer, error) {
	auth, err := authMethods(cfg)
	if err != nil {
		return nil, err
	}

	clientCfg := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // bastion host is operator-controlled
		Timeout:         cfg.HandshakeTimeout,
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	client, err := ssh.Dial("tcp", addr, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("ssh dial %s: %w", addr, err)
	}
	return client, nil
}

// authMethods builds the credential in priority order: key file, inline key,
// password. Credential errors are fatal to establishment, never retried.
func authMethods(cfg config.TunnelConfig) ([]ssh.AuthMethod, error) {
	keyData := []byte(cfg.PrivateKey)
	if cfg.PrivateKeyPath != "" {
		data, err := os.ReadFile(cfg.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read private key: %w", err)
		}
		keyData = data
	}

	if len(keyData) > 0 {
		var (
			signer ssh.Signer
			err    error
		)
		if cfg.Passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(keyData, []byte(cfg.Passphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(keyData)
		}
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}

	if cfg.Password != "" {
		return []ssh.AuthMethod{ssh.Password(cfg.Password)}, nil
	}

	return nil, errors.New("no tunnel credential configured")
}
