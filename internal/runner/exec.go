// Package runner holds the job runners the pool can drive.
package runner

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"envpool/internal/job"
	logx "envpool/pkg/logx"
)

var ErrNoCommand = errors.New("runner: exec command is required")

type ExecConfig struct {
	Command string
	Args    []string
	Dir     string
	Env     []string
	// StderrTail is how many trailing stderr bytes end up in the failure.
	StderrTail int
	// KillGrace is how long the process gets after cancellation before it
	// is killed.
	KillGrace time.Duration
}

// Exec runs an external automation script per attempt. The script gets the
// job as JSON on stdin and the endpoint in ENVPOOL_ENDPOINT; exit code 0 is
// success.
type Exec struct {
	cfg ExecConfig
	log logx.Logger
}

type execInput struct {
	Key      string            `json:"key"`
	Row      int               `json:"row"`
	Attempt  int               `json:"attempt"`
	Origin   string            `json:"origin"`
	Endpoint string            `json:"endpoint"`
	Payload  map[string]string `json:"payload"`
}

func NewExec(cfg ExecConfig, log logx.Logger) (*Exec, error) {
	if strings.TrimSpace(cfg.Command) == "" {
		return nil, ErrNoCommand
	}
	if cfg.StderrTail <= 0 {
		cfg.StderrTail = 2048
	}
	if cfg.KillGrace <= 0 {
		cfg.KillGrace = 5 * time.Second
	}
	return &Exec{cfg: cfg, log: log.With(logx.Comp("runner.exec"))}, nil
}

func (e *Exec) Run(ctx context.Context, endpoint string, j job.Job) error {
	in, err := json.Marshal(execInput{
		Key: j.Key, Row: j.Row, Attempt: j.Attempt, Origin: j.Origin.String(),
		Endpoint: endpoint, Payload: j.Payload,
	})
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}

	cmd := exec.CommandContext(ctx, e.cfg.Command, e.cfg.Args...)
	cmd.Dir = e.cfg.Dir
	cmd.WaitDelay = e.cfg.KillGrace
	cmd.Env = append(append(os.Environ(), e.cfg.Env...),
		"ENVPOOL_ENDPOINT="+endpoint,
		"ENVPOOL_KEY="+j.Key,
		"ENVPOOL_ROW="+strconv.Itoa(j.Row),
		"ENVPOOL_ATTEMPT="+strconv.Itoa(j.Attempt),
	)
	cmd.Stdin = bytes.NewReader(in)
	stderr := &tailBuffer{max: e.cfg.StderrTail}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", e.cfg.Command, err)
	}
	log := e.log.With(logx.String("key", j.Key), logx.Int("attempt", j.Attempt))
	e.pipeLines(stdout, log)

	err = cmd.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			return fmt.Errorf("exit %d: %s", ee.ExitCode(), stderr.String())
		}
		return err
	}
	return nil
}

func (e *Exec) pipeLines(r io.Reader, log logx.Logger) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		log.Debug("runner output", logx.String("line", sc.Text()))
	}
}

// tailBuffer keeps the last max bytes written.
type tailBuffer struct {
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string { return strings.TrimSpace(string(t.buf)) }
