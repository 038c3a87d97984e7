package shell

import (
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
)

// ErrQuit is returned by the quit builtin to end the read-eval loop.
var ErrQuit = errors.New("quit")

// FatalError is a failed system call in the shell's own control flow. The
// loop stops on it and the shell exits with status 1.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// CommandError is a program that could not be started.
type CommandError struct {
	Name string
	Err  error
}

func (e *CommandError) Error() string {
	if errors.Is(e.Err, exec.ErrNotFound) || errors.Is(e.Err, fs.ErrNotExist) {
		return fmt.Sprintf("%s: Command not found", e.Name)
	}
	return fmt.Sprintf("%s: %v", e.Name, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
