package slurm

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
	"golang.org/x/crypto/ssh"
)

// Runner runs a scheduler command, either locally or on a remote host.
type Runner interface {
	// Run runs argv on host, or locally when host is empty, and returns
	// its standard output. A non-zero exit status is an error.
	Run(ctx context.Context, host string, argv []string) ([]byte, error)
}

// LocalRunner runs commands on this machine. It refuses remote hosts.
type LocalRunner struct{}

// Run implements Runner.
func (LocalRunner) Run(ctx context.Context, host string, argv []string) ([]byte, error) {
	if host != "" {
		return nil, fmt.Errorf("local runner cannot run on %s", host)
	}
	return runLocal(ctx, argv)
}

func runLocal(ctx context.Context, argv []string) ([]byte, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stdout.Bytes(), fmt.Errorf("%s: %w: %s", shellquote.Join(argv...), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// SSHRunner runs commands on a login node over SSH with public key
// authentication, and locally when no host is given.
type SSHRunner struct {
	User    string
	KeyPath string
	Port    int
	Timeout time.Duration
}

// Run implements Runner.
func (s *SSHRunner) Run(ctx context.Context, host string, argv []string) ([]byte, error) {
	if host == "" {
		return runLocal(ctx, argv)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	conf, err := s.clientConfig()
	if err != nil {
		return nil, err
	}
	port := s.Port
	if port == 0 {
		port = 22
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	client, err := dial(ctx, addr, conf)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	defer client.Close()

	sess, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("opening session on %s: %w", addr, err)
	}
	defer sess.Close()

	var stdout, stderr bytes.Buffer
	sess.Stdout = &stdout
	sess.Stderr = &stderr

	command := shellquote.Join(argv...)
	done := make(chan error, 1)
	go func() { done <- sess.Run(command) }()

	select {
	case <-ctx.Done():
		sess.Signal(ssh.SIGKILL)
		return nil, ctx.Err()
	case err := <-done:
		if err != nil {
			return stdout.Bytes(), fmt.Errorf("%s on %s: %w: %s", command, host, err, strings.TrimSpace(stderr.String()))
		}
	}
	return stdout.Bytes(), nil
}

func (s *SSHRunner) clientConfig() (*ssh.ClientConfig, error) {
	key, err := os.ReadFile(s.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("reading ssh key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("parsing ssh key %s: %w", s.KeyPath, err)
	}
	timeout := s.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &ssh.ClientConfig{
		User:            s.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		Timeout:         timeout,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}, nil
}

func dial(ctx context.Context, addr string, conf *ssh.ClientConfig) (*ssh.Client, error) {
	d := net.Dialer{Timeout: conf.Timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, conf)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return ssh.NewClient(c, chans, reqs), nil
}
