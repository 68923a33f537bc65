package adapter

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"fleetwall/internal/domain"
)

// SSHConfig holds credentials and timeouts for the SSH transport
type SSHConfig struct {
	User           string
	KeyPath        string
	Passphrase     string
	Password       string
	Port           int
	ConnectTimeout time.Duration
}

// DefaultSSHConfig returns sensible defaults
func DefaultSSHConfig() SSHConfig {
	return SSHConfig{
		User:           "admin",
		Port:           22,
		ConnectTimeout: 10 * time.Second,
	}
}

// SSHTransport runs commands on devices over SSH
type SSHTransport struct {
	config  SSHConfig
	auth    []ssh.AuthMethod
	mu      sync.Mutex
	clients map[string]*ssh.Client
}

// NewSSHTransport creates a transport from config. At least one of KeyPath
// or Password must be set.
func NewSSHTransport(config SSHConfig) (*SSHTransport, error) {
	defaults := DefaultSSHConfig()
	if config.User == "" {
		config.User = defaults.User
	}
	if config.Port == 0 {
		config.Port = defaults.Port
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = defaults.ConnectTimeout
	}

	auth, err := buildAuthMethods(config)
	if err != nil {
		return nil, err
	}

	return &SSHTransport{
		config:  config,
		auth:    auth,
		clients: make(map[string]*ssh.Client),
	}, nil
}

func buildAuthMethods(config SSHConfig) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if config.KeyPath != "" {
		keyData, err := os.ReadFile(config.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key: %w", err)
		}
		signer, err := parseSigner(keyData, config.Passphrase)
		if err != nil {
			return nil, err
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	if config.Password != "" {
		methods = append(methods, ssh.Password(config.Password))
	}

	if len(methods) == 0 {
		return nil, errors.New("ssh transport: no key_path or password configured")
	}
	return methods, nil
}

func parseSigner(keyData []byte, passphrase string) (ssh.Signer, error) {
	var (
		signer ssh.Signer
		err    error
	)
	if passphrase != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(keyData, []byte(passphrase))
	} else {
		signer, err = ssh.ParsePrivateKey(keyData)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return signer, nil
}

// Send runs command on device, dialing or reusing a cached client
func (t *SSHTransport) Send(ctx context.Context, device domain.Device, command string) (string, error) {
	client, err := t.client(ctx, device)
	if err != nil {
		return "", &domain.ConnectionError{DeviceID: device.ID, Err: err}
	}

	output, err := t.run(ctx, client, command)
	if err != nil {
		var exitErr *ssh.ExitError
		if !errors.As(err, &exitErr) {
			// session-level failure, the cached client is likely dead
			t.drop(device)
		}
		return output, &domain.CommandError{DeviceID: device.ID, Command: command, Err: err}
	}

	if msg := routerOSFailure(output); msg != "" {
		return output, &domain.CommandError{DeviceID: device.ID, Command: command, Err: errors.New(msg)}
	}
	return output, nil
}

// Close disconnects every cached client
func (t *SSHTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var errs []error
	for addr, client := range t.clients {
		if err := client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", addr, err))
		}
		delete(t.clients, addr)
	}
	return errors.Join(errs...)
}

func (t *SSHTransport) client(ctx context.Context, device domain.Device) (*ssh.Client, error) {
	addr := device.HostPort(t.config.Port)

	t.mu.Lock()
	if client, ok := t.clients[addr]; ok {
		t.mu.Unlock()
		return client, nil
	}
	t.mu.Unlock()

	client, err := t.connect(ctx, addr)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.clients[addr]; ok {
		client.Close()
		return existing, nil
	}
	t.clients[addr] = client
	log.Printf("SSH transport: connected to %s (%s)", device.Label(), addr)
	return client, nil
}

func (t *SSHTransport) drop(device domain.Device) {
	addr := device.HostPort(t.config.Port)

	t.mu.Lock()
	defer t.mu.Unlock()
	if client, ok := t.clients[addr]; ok {
		client.Close()
		delete(t.clients, addr)
	}
}

// connect dials addr and completes the SSH handshake
func (t *SSHTransport) connect(ctx context.Context, addr string) (*ssh.Client, error) {
	config := &ssh.ClientConfig{
		User:            t.config.User,
		Auth:            t.auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         t.config.ConnectTimeout,
	}

	dialer := &net.Dialer{Timeout: t.config.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial: %w", err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to establish SSH connection: %w", err)
	}

	return ssh.NewClient(sshConn, chans, reqs), nil
}

// run executes cmd in a fresh session, killing it if ctx expires
func (t *SSHTransport) run(ctx context.Context, client *ssh.Client, cmd string) (string, error) {
	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close()

	type result struct {
		output []byte
		err    error
	}
	done := make(chan result, 1)

	go func() {
		output, err := session.CombinedOutput(cmd)
		done <- result{output, err}
	}()

	select {
	case r := <-done:
		return string(r.output), r.err
	case <-ctx.Done():
		session.Signal(ssh.SIGKILL)
		return "", fmt.Errorf("command aborted: %w", ctx.Err())
	}
}

// routerOSFailure extracts an error message from output RouterOS prints on a
// zero exit status
func routerOSFailure(output string) string {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		lower := strings.ToLower(line)
		switch {
		case strings.HasPrefix(lower, "failure:"),
			strings.HasPrefix(lower, "syntax error"),
			strings.HasPrefix(lower, "bad command name"),
			strings.HasPrefix(lower, "expected end of command"),
			strings.HasPrefix(lower, "input does not match any value"),
			strings.Contains(lower, "no such item"):
			return line
		}
	}
	return ""
}
