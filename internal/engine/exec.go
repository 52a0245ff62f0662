package engine

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Number of trailing diagnostic lines kept for error reporting.
const detailTailLines = 40

// ffmpeg reports the media position of the running job on its stats line,
// e.g. "frame= 120 fps= 30 ... time=00:00:05.00 bitrate= 900kbits/s".
var timeRe = regexp.MustCompile(`time=(\d+):(\d{2}):(\d{2}(?:\.\d+)?)`)

// Invoke runs one ffmpeg invocation inside the scratch directory. Every
// diagnostic line is forwarded to log subscribers; lines carrying a time=
// token additionally produce a progress event with the elapsed media
// seconds. A non-zero exit returns a *InvocationError carrying the tail
// of the diagnostic output.
func (e *ExecEngine) Invoke(ctx context.Context, args []string) error {
	e.mu.Lock()
	if !e.loaded {
		e.mu.Unlock()
		return &LoadError{Err: errors.New("engine not loaded")}
	}
	binPath := e.binPath
	scratch := e.scratch
	e.mu.Unlock()

	e.log.Debug("invoking engine", "args", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, binPath, args...)
	cmd.Dir = scratch

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return &InvocationError{Args: args, Err: err}
	}
	if err := cmd.Start(); err != nil {
		return &InvocationError{Args: args, Err: err}
	}

	var tail []string
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	scanner.Split(scanStatusLines)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " ")
		if line == "" {
			continue
		}
		tail = append(tail, line)
		if len(tail) > detailTailLines {
			tail = tail[1:]
		}
		e.emitLog(line)
		if elapsed, ok := parseElapsed(line); ok {
			e.emitProgress(Progress{Fraction: -1, Elapsed: elapsed})
		}
	}

	if err := cmd.Wait(); err != nil {
		return &InvocationError{
			Args:   args,
			Detail: strings.Join(tail, "\n"),
			Err:    err,
		}
	}
	return nil
}

// WriteScratchFile stores data under name inside the scratch space.
func (e *ExecEngine) WriteScratchFile(name string, data []byte) error {
	path, err := e.scratchPath(name)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (e *ExecEngine) ReadScratchFile(name string) ([]byte, error) {
	path, err := e.scratchPath(name)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

// DeleteScratchFile removes name from the scratch space. Deleting a name
// that does not exist is not an error, so cleanup can be retried freely.
func (e *ExecEngine) DeleteScratchFile(name string) error {
	path, err := e.scratchPath(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (e *ExecEngine) scratchPath(name string) (string, error) {
	e.mu.Lock()
	scratch := e.scratch
	loaded := e.loaded
	e.mu.Unlock()

	if !loaded {
		return "", &LoadError{Err: errors.New("engine not loaded")}
	}
	if name == "" || name != filepath.Base(name) {
		return "", fmt.Errorf("invalid scratch name %q", name)
	}
	return filepath.Join(scratch, name), nil
}

// scanStatusLines splits on both \n and \r, because ffmpeg rewrites its
// stats line in place with carriage returns.
func scanStatusLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func parseElapsed(line string) (float64, bool) {
	m := timeRe.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	hours, _ := strconv.ParseFloat(m[1], 64)
	minutes, _ := strconv.ParseFloat(m[2], 64)
	seconds, _ := strconv.ParseFloat(m[3], 64)
	return hours*3600 + minutes*60 + seconds, true
}
