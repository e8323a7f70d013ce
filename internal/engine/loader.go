package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/voice-scribe/backend/internal/recovery"
)

// ServerHandle is the opaque backing handle a ServerLoader yields: the
// spawned process (nil in attach mode) and a client bound to its endpoint.
type ServerHandle struct {
	cmd    *exec.Cmd
	Client *Client
}

// ServerLoader implements resource.Loader for an engine server. When
// Command is set the server process is spawned and killed on unload; when
// empty the loader attaches to an already-running server at BaseURL and
// unload is a no-op beyond dropping the client.
type ServerLoader struct {
	Name         string        // log tag, e.g. "speech-engine"
	Command      string        // e.g. "whisper-server --port 8178 -m /models/ggml-base.bin"
	BaseURL      string        // e.g. "http://127.0.0.1:8178"
	StartTimeout time.Duration // health-poll bound after spawn; default 60s
	InferTimeout time.Duration // per-call client timeout
}

// Load spawns (or attaches to) the engine server and waits for it to
// report healthy. No partial state survives a failure: a spawned process
// that never becomes healthy is killed before the error returns.
func (l *ServerLoader) Load(params map[string]string) (any, error) {
	client := NewClient(l.BaseURL, l.InferTimeout)

	var cmd *exec.Cmd
	if l.Command != "" {
		argv := buildArgv(l.Command, params)
		cmd = exec.Command(argv[0], argv[1:]...)
		cmd.Stdout = os.Stderr
		cmd.Stderr = os.Stderr
		if err := cmd.Start(); err != nil {
			if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
				return nil, recovery.ModelNotFound(fmt.Errorf("%s: %w", argv[0], err))
			}
			return nil, recovery.ModelLoadFailure(fmt.Errorf("spawn %s: %w", argv[0], err))
		}
		log.Printf("[engine] %s: spawned pid %d", l.Name, cmd.Process.Pid)
	}

	if err := l.waitHealthy(client); err != nil {
		if cmd != nil {
			cmd.Process.Kill()
			cmd.Wait()
		}
		return nil, recovery.ModelLoadFailure(fmt.Errorf("%s at %s: %w", l.Name, l.BaseURL, err))
	}

	log.Printf("[engine] %s: ready at %s", l.Name, l.BaseURL)
	return &ServerHandle{cmd: cmd, Client: client}, nil
}

// Unload stops the spawned server process. For attach mode there is
// nothing to stop.
func (l *ServerLoader) Unload(handle any) error {
	h, ok := handle.(*ServerHandle)
	if !ok {
		return fmt.Errorf("%s: unexpected handle type %T", l.Name, handle)
	}
	if h.cmd == nil || h.cmd.Process == nil {
		return nil
	}

	if err := h.cmd.Process.Kill(); err != nil {
		return fmt.Errorf("%s: kill pid %d: %w", l.Name, h.cmd.Process.Pid, err)
	}
	h.cmd.Wait() // reap; exit status of a killed process is expected noise
	log.Printf("[engine] %s: stopped pid %d", l.Name, h.cmd.Process.Pid)
	return nil
}

func (l *ServerLoader) waitHealthy(client *Client) error {
	timeout := l.StartTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var lastErr error
	for {
		hctx, hcancel := context.WithTimeout(ctx, 2*time.Second)
		lastErr = client.Health(hctx)
		hcancel()
		if lastErr == nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("server not healthy within %s: %w", timeout, lastErr)
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// buildArgv splits the configured command line and appends any
// "--key value" pairs from the load params, in key order.
func buildArgv(command string, params map[string]string) []string {
	argv := strings.Fields(command)
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		argv = append(argv, "--"+k, params[k])
	}
	return argv
}
