package fsutil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout bounds external commands when a
// Transaction has no Timeout set.
const DefaultTimeout = 60 * time.Second

// Transaction runs a sequence of file operations relative to Root.
// The first failing operation sets Err, and every operation after
// that is a no-op.
type Transaction struct {
	Root    Path
	Err     error
	Log     *zap.Logger
	Timeout time.Duration
}

// New creates a Transaction rooted at root.
func New(root Path, log *zap.Logger) *Transaction {
	if log == nil {
		log = zap.NewNop()
	}
	return &Transaction{Root: root, Log: log, Timeout: DefaultTimeout}
}

func (tr *Transaction) logger() *zap.Logger {
	if tr.Log == nil {
		return zap.NewNop()
	}
	return tr.Log
}

func (tr *Transaction) abs(file Path) string {
	return tr.Root.JoinP(file).String()
}

// Exists reports whether file exists. Errors other than a
// missing file set Err.
func (tr *Transaction) Exists(file Path) bool {
	if tr.Err != nil {
		return false
	}
	_, err := os.Stat(tr.abs(file))
	if !os.IsNotExist(err) && err != nil {
		tr.Err = fmt.Errorf("Exists `%s`: Stat error: %w", file.String(), err)
	}
	return err == nil
}

// ReadString returns the content of file.
func (tr *Transaction) ReadString(file Path) string {
	if tr.Err != nil {
		return ""
	}
	content, err := os.ReadFile(tr.abs(file))
	if err != nil {
		tr.Err = fmt.Errorf("ReadString `%s`: ReadFile error: %w", file.String(), err)
		return ""
	}
	return string(content)
}

// Save writes content to targetPath.
func (tr *Transaction) Save(targetPath Path, content []byte) {
	if tr.Err != nil {
		return
	}

	err := os.WriteFile(tr.abs(targetPath), content, os.FileMode(0664))
	if err != nil {
		tr.Err = fmt.Errorf("Save to `%s`: WriteFile error: %w", targetPath.String(), err)
	}
}

// WriteString writes content to targetPath.
func (tr *Transaction) WriteString(targetPath Path, content string) {
	tr.Save(targetPath, []byte(content))
}

// Copy copies the file from to to.
func (tr *Transaction) Copy(from, to Path) {
	if tr.Err != nil {
		return
	}

	tr.logger().Debug("copy", zap.Stringer("from", from), zap.Stringer("to", to))
	source, err := os.Open(tr.abs(from))
	if err != nil {
		tr.Err = fmt.Errorf("Copy from `%s` to `%s`: Open error: %w", from.String(), to.String(), err)
		return
	}
	defer source.Close()

	target, err := os.OpenFile(tr.abs(to), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(0664))
	if err != nil {
		tr.Err = fmt.Errorf("Copy from `%s` to `%s`: OpenFile error: %w", from.String(), to.String(), err)
		return
	}
	defer target.Close()

	_, err = io.Copy(target, source)
	if err != nil {
		tr.Err = fmt.Errorf("Copy from `%s` to `%s`: Copy error: %w", from.String(), to.String(), err)
	}
}

// Link creates a symbolic link to, pointing to from.
// An existing file at to is replaced.
func (tr *Transaction) Link(from, to Path) {
	if tr.Err != nil {
		return
	}
	tr.logger().Debug("link", zap.Stringer("from", from), zap.Stringer("to", to))
	if err := os.Remove(tr.abs(to)); err != nil && !os.IsNotExist(err) {
		tr.Err = fmt.Errorf("Link from `%s` to `%s`: Remove error: %w", from.String(), to.String(), err)
		return
	}
	err := os.Symlink(tr.abs(from), tr.abs(to))
	if err != nil {
		tr.Err = fmt.Errorf("Link from `%s` to `%s`: Symlink error: %w", from.String(), to.String(), err)
	}
}

// MkDir creates dir and its parents.
func (tr *Transaction) MkDir(dir Path) {
	if tr.Err != nil {
		return
	}

	err := os.MkdirAll(tr.abs(dir), os.FileMode(0755))
	if err != nil {
		tr.Err = fmt.Errorf("MkDir `%s`: MkdirAll error: %w", dir.String(), err)
	}
}

// RmFile removes file. A missing file is not an error.
func (tr *Transaction) RmFile(file Path) {
	if tr.Err != nil {
		return
	}
	tr.logger().Debug("remove", zap.Stringer("file", file))
	err := os.Remove(tr.abs(file))
	if err != nil && !os.IsNotExist(err) {
		tr.Err = fmt.Errorf("RmFile `%s`: Remove error: %w", file.String(), err)
	}
}

// Glob returns files matching pattern, relative to Root when
// pattern is, sorted by name.
func (tr *Transaction) Glob(pattern Path) []Path {
	if tr.Err != nil {
		return nil
	}
	matches, err := filepath.Glob(tr.abs(pattern))
	if err != nil {
		tr.Err = fmt.Errorf("Glob `%s`: %w", pattern.String(), err)
		return nil
	}
	sort.Strings(matches)
	res := make([]Path, len(matches))
	for i, m := range matches {
		if !pattern.IsAbs() {
			if rel, err := filepath.Rel(tr.Root.String(), m); err == nil {
				m = filepath.ToSlash(rel)
			}
		}
		res[i] = Path(m)
	}
	return res
}

// ExternalProcessError is a command that failed, or did not
// complete within the transaction timeout.
type ExternalProcessError struct {
	Command  string
	Args     []string
	ExitCode int
	TimedOut bool
	Stderr   string
	Err      error
}

func (e *ExternalProcessError) Error() string {
	cmd := strings.Join(append([]string{e.Command}, e.Args...), " ")
	if e.TimedOut {
		return fmt.Sprintf("command `%s` timed out", cmd)
	}
	msg := fmt.Sprintf("command `%s` failed with exit code %d", cmd, e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + strings.TrimSpace(e.Stderr)
	}
	return msg
}

func (e *ExternalProcessError) Unwrap() error {
	return e.Err
}

// Output runs command in cwd and returns its standard output.
// The command is killed when Timeout elapses. Unlike the other
// operations, Output does not set Err: the caller decides whether
// the failure is fatal.
func (tr *Transaction) Output(cwd Path, command string, args ...string) (string, error) {
	if tr.Err != nil {
		return "", tr.Err
	}
	timeout := tr.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Dir = tr.abs(cwd)
	cmd.WaitDelay = time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	tr.logger().Debug("exec", zap.String("command", command), zap.Strings("args", args), zap.Duration("timeout", timeout))
	err := cmd.Run()
	if err == nil {
		return stdout.String(), nil
	}

	procErr := &ExternalProcessError{
		Command:  command,
		Args:     args,
		ExitCode: -1,
		Stderr:   stderr.String(),
		Err:      err,
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		procErr.TimedOut = true
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		procErr.ExitCode = exitErr.ExitCode()
	}
	return stdout.String(), procErr
}

// Run is like Output, but failures set Err.
func (tr *Transaction) Run(cwd Path, command string, args ...string) string {
	if tr.Err != nil {
		return ""
	}
	out, err := tr.Output(cwd, command, args...)
	if err != nil {
		tr.Err = err
	}
	return out
}
