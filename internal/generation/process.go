package generation

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultInterpreter = "python3"
	successMarker      = "Saved capture"
)

// ProcessGenerator delegates the whole generation to an external program
// that writes the finished record into the datastore and reports its ID on
// stdout as "Saved capture #<id>".
type ProcessGenerator struct {
	// Interpreter runs Script; empty executes Script directly.
	Interpreter string
	Script      string
	// Timeout bounds one invocation; zero means no limit beyond ctx.
	Timeout time.Duration
	Logger  *slog.Logger
}

func (g *ProcessGenerator) Generate(ctx context.Context, req Request) (Result, error) {
	log := g.logger()

	imgPath, cleanup, err := writeTempImage(req.RawImage)
	if err != nil {
		return Result{}, &Error{Kind: ErrUnavailable, Err: err}
	}
	defer cleanup()

	if g.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}

	args := []string{
		"--image", imgPath,
		"--profession", req.Profession,
		"--age", strconv.Itoa(req.Age),
		"--db", req.StorePath,
	}
	name := g.Script
	if g.Interpreter != "" {
		name = g.Interpreter
		args = append([]string{g.Script}, args...)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = 2 * time.Second

	if err := cmd.Start(); err != nil {
		return Result{}, &Error{Kind: ErrUnavailable, Err: fmt.Errorf("starting %s: %w", name, err)}
	}
	waitErr := cmd.Wait()
	if ctx.Err() != nil {
		return Result{}, &Error{Kind: ErrUnavailable, Err: fmt.Errorf("generation process: %w", ctx.Err())}
	}
	// The exit status is only logged; stderr and stdout decide the outcome.
	if waitErr != nil {
		log.Debug("generation process exited", "error", waitErr)
	}

	if stderr.Len() > 0 {
		msg := strings.TrimSpace(stderr.String())
		return Result{}, &Error{Kind: ErrFailed, Err: fmt.Errorf("generation process stderr: %q", msg)}
	}

	id, err := ParseConfirmation(stdout.String())
	if err != nil {
		return Result{}, err
	}
	return Result{Kind: ResultConfirmed, RecordID: id}, nil
}

func (g *ProcessGenerator) logger() *slog.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return slog.Default()
}

// ParseConfirmation finds the first success line in the process output and returns
// the record ID after its last '#'. A missing line is ErrFailed; a line whose
// ID is not a positive base-10 integer is ErrIdentifierParse.
func ParseConfirmation(stdout string) (int64, error) {
	var line string
	sc := bufio.NewScanner(strings.NewReader(stdout))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		if strings.Contains(sc.Text(), successMarker) {
			line = sc.Text()
			break
		}
	}
	if err := sc.Err(); err != nil {
		return 0, &Error{Kind: ErrFailed, Err: fmt.Errorf("reading output: %w", err)}
	}
	if line == "" {
		return 0, &Error{Kind: ErrFailed, Err: errors.New("no confirmation line in output")}
	}

	i := strings.LastIndexByte(line, '#')
	if i < 0 {
		return 0, &Error{Kind: ErrIdentifierParse, Err: fmt.Errorf("no '#' in %q", line)}
	}
	token := strings.TrimSpace(line[i+1:])
	id, err := strconv.ParseInt(token, 10, 64)
	if err != nil {
		return 0, &Error{Kind: ErrIdentifierParse, Err: err}
	}
	if id <= 0 {
		return 0, &Error{Kind: ErrIdentifierParse, Err: fmt.Errorf("non-positive id %d", id)}
	}
	return id, nil
}

func writeTempImage(data []byte) (string, func(), error) {
	f, err := os.CreateTemp("", "previouslives-*.png")
	if err != nil {
		return "", nil, fmt.Errorf("creating temp image: %w", err)
	}
	cleanup := func() { os.Remove(f.Name()) }

	if _, err := f.Write(data); err != nil {
		f.Close()
		cleanup()
		return "", nil, fmt.Errorf("writing temp image: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("closing temp image: %w", err)
	}
	return f.Name(), cleanup, nil
}
