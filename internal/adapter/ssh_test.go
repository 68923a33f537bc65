package adapter

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"io"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"

	"fleetwall/internal/domain"
)

// testSSHServer is a loopback SSH server answering exec requests
type testSSHServer struct {
	addr  *net.TCPAddr
	conns atomic.Int32
}

func startTestSSHServer(t *testing.T, handle func(cmd string) (string, uint32)) *testSSHServer {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate host key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("host signer: %v", err)
	}

	config := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if c.User() == "admin" && string(pass) == "secret" {
				return nil, nil
			}
			return nil, errors.New("access denied")
		},
	}
	config.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	srv := &testSSHServer{addr: ln.Addr().(*net.TCPAddr)}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			srv.conns.Add(1)
			go serveTestConn(conn, config, handle)
		}
	}()
	return srv
}

func serveTestConn(conn net.Conn, config *ssh.ServerConfig, handle func(string) (string, uint32)) {
	_, chans, reqs, err := ssh.NewServerConn(conn, config)
	if err != nil {
		conn.Close()
		return
	}
	go ssh.DiscardRequests(reqs)

	for nc := range chans {
		if nc.ChannelType() != "session" {
			nc.Reject(ssh.UnknownChannelType, "unsupported")
			continue
		}
		ch, requests, err := nc.Accept()
		if err != nil {
			continue
		}
		go func() {
			defer ch.Close()
			for req := range requests {
				if req.Type != "exec" {
					req.Reply(false, nil)
					continue
				}
				var payload struct{ Command string }
				ssh.Unmarshal(req.Payload, &payload)
				req.Reply(true, nil)

				output, status := handle(payload.Command)
				io.WriteString(ch, output)
				ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{status}))
				return
			}
		}()
	}
}

func routerOSHandler(cmd string) (string, uint32) {
	switch {
	case strings.Contains(cmd, "duplicate"):
		return "failure: already have such entry\n", 0
	case strings.HasPrefix(cmd, "/bogus"):
		return "bad command name bogus (line 1 column 2)\n", 1
	default:
		return "", 0
	}
}

func newTestTransport(t *testing.T, port int) *SSHTransport {
	t.Helper()
	transport, err := NewSSHTransport(SSHConfig{
		User:           "admin",
		Password:       "secret",
		Port:           port,
		ConnectTimeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewSSHTransport() error: %v", err)
	}
	t.Cleanup(func() { transport.Close() })
	return transport
}

func TestSSHTransportSend(t *testing.T) {
	srv := startTestSSHServer(t, routerOSHandler)
	transport := newTestTransport(t, srv.addr.Port)
	device := domain.Device{ID: "r1", Address: "127.0.0.1"}
	ctx := context.Background()

	t.Run("success reuses client", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			if _, err := transport.Send(ctx, device, "/ip firewall filter add chain=input action=accept"); err != nil {
				t.Fatalf("Send() error: %v", err)
			}
		}
		if n := srv.conns.Load(); n != 1 {
			t.Errorf("expected 1 connection, got %d", n)
		}
	})

	t.Run("failure output", func(t *testing.T) {
		output, err := transport.Send(ctx, device, "/ip firewall address-list add list=duplicate address=10.0.0.1")
		var cmdErr *domain.CommandError
		if !errors.As(err, &cmdErr) {
			t.Fatalf("expected CommandError, got %v", err)
		}
		if !strings.Contains(output, "already have such entry") {
			t.Errorf("expected device output preserved, got %q", output)
		}
	})

	t.Run("non-zero exit", func(t *testing.T) {
		_, err := transport.Send(ctx, device, "/bogus")
		var cmdErr *domain.CommandError
		if !errors.As(err, &cmdErr) {
			t.Fatalf("expected CommandError, got %v", err)
		}
		var exitErr *ssh.ExitError
		if !errors.As(err, &exitErr) {
			t.Errorf("expected wrapped ExitError, got %v", err)
		}
	})
}

func TestSSHTransportBadPassword(t *testing.T) {
	srv := startTestSSHServer(t, routerOSHandler)
	transport, err := NewSSHTransport(SSHConfig{User: "admin", Password: "wrong", Port: srv.addr.Port})
	if err != nil {
		t.Fatalf("NewSSHTransport() error: %v", err)
	}
	defer transport.Close()

	_, err = transport.Send(context.Background(), domain.Device{ID: "r1", Address: "127.0.0.1"}, "/system identity print")
	var connErr *domain.ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected ConnectionError, got %v", err)
	}
}

func TestSSHTransportUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	transport := newTestTransport(t, port)
	_, err = transport.Send(context.Background(), domain.Device{ID: "r1", Address: "127.0.0.1"}, "/system identity print")

	var connErr *domain.ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected ConnectionError, got %v", err)
	}
	if connErr.DeviceID != "r1" {
		t.Errorf("expected device r1, got %s", connErr.DeviceID)
	}
}

func TestNewSSHTransportConfig(t *testing.T) {
	if _, err := NewSSHTransport(SSHConfig{User: "admin"}); err == nil {
		t.Error("expected error without credentials")
	}
	if _, err := NewSSHTransport(SSHConfig{KeyPath: "/nonexistent/id_ed25519"}); err == nil {
		t.Error("expected error for missing key file")
	}

	transport, err := NewSSHTransport(SSHConfig{Password: "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if transport.config.User != "admin" || transport.config.Port != 22 {
		t.Errorf("expected defaults applied, got %+v", transport.config)
	}
}

func TestRouterOSFailure(t *testing.T) {
	tests := []struct {
		output string
		want   string
	}{
		{"", ""},
		{"Flags: X - disabled\n 0 chain=input action=accept", ""},
		{"failure: already have such entry", "failure: already have such entry"},
		{"syntax error (line 1 column 5)", "syntax error (line 1 column 5)"},
		{"expected end of command (line 1 column 40)", "expected end of command (line 1 column 40)"},
		{"input does not match any value of chain", "input does not match any value of chain"},
		{"\n  no such item\n", "no such item"},
	}

	for _, tt := range tests {
		t.Run(tt.output, func(t *testing.T) {
			if got := routerOSFailure(tt.output); got != tt.want {
				t.Errorf("routerOSFailure(%q) = %q, want %q", tt.output, got, tt.want)
			}
		})
	}
}
