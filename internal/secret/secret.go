// Package secret obtains the job password without ever taking it from the command line.
package secret

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// EnvVar is the environment variable consulted when no other source is configured.
const EnvVar = "FOLDENC_PASSWORD"

var (
	// ErrNoPassword is returned when no source yields a password and there is no terminal to ask on.
	ErrNoPassword = errors.New("no password provided: use --password-file, --password-stdin or " + EnvVar)
	// ErrMismatch is returned when the confirmation differs from the first entry.
	ErrMismatch = errors.New("passwords do not match")
	// ErrEmpty is returned for an empty password unless empty passwords are allowed.
	ErrEmpty = errors.New("password is empty")
)

// Test seams for the terminal.
//
//nolint:gochecknoglobals
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
)

// Source describes where the password comes from. The first configured one wins:
// File, then Stdin, then the EnvVar environment variable, then an interactive prompt.
type Source struct {
	// File is a path whose content, minus one trailing line break, is the password.
	File string
	// Stdin reads the first line of In.
	Stdin bool
	// Confirm asks twice when prompting.
	Confirm bool
	// AllowEmpty accepts an empty password.
	AllowEmpty bool

	// In is read for Stdin, os.Stdin if nil.
	In io.Reader
	// Prompt receives the prompts, os.Stderr if nil.
	Prompt io.Writer
	// Getenv looks up EnvVar, os.Getenv if nil.
	Getenv func(string) string
}

// Read returns the password. The caller owns the slice and should Wipe it.
func (s Source) Read() ([]byte, error) {
	password, err := s.read()
	if err != nil {
		return nil, err
	}

	if len(password) == 0 && !s.AllowEmpty {
		return nil, ErrEmpty
	}

	return password, nil
}

func (s Source) read() ([]byte, error) {
	switch {
	case s.File != "":
		data, err := os.ReadFile(s.File)
		if err != nil {
			return nil, fmt.Errorf("reading password file: %w", err)
		}

		password := trimLineBreak(data)
		result := bytes.Clone(password)

		Wipe(data)

		return result, nil
	case s.Stdin:
		in := s.In
		if in == nil {
			in = os.Stdin
		}

		line, err := bufio.NewReader(in).ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("reading password from stdin: %w", err)
		}

		return trimLineBreak(line), nil
	}

	getenv := s.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	if value := getenv(EnvVar); value != "" {
		return []byte(value), nil
	}

	return s.prompt()
}

func (s Source) prompt() ([]byte, error) {
	fd := int(os.Stdin.Fd()) //nolint:gosec // file descriptors fit in int

	if !isTerminal(fd) {
		return nil, ErrNoPassword
	}

	w := s.Prompt
	if w == nil {
		w = os.Stderr
	}

	password, err := ask(w, fd, "Enter password: ")
	if err != nil {
		return nil, err
	}

	if !s.Confirm {
		return password, nil
	}

	confirmation, err := ask(w, fd, "Confirm password: ")
	if err != nil {
		Wipe(password)

		return nil, err
	}
	defer Wipe(confirmation)

	if !bytes.Equal(password, confirmation) {
		Wipe(password)

		return nil, ErrMismatch
	}

	return password, nil
}

func ask(w io.Writer, fd int, prompt string) ([]byte, error) {
	if _, err := fmt.Fprint(w, prompt); err != nil {
		return nil, err
	}

	password, err := readPassword(fd)
	fmt.Fprintln(w) //nolint:errcheck // cosmetic newline after the hidden input

	if err != nil {
		return nil, fmt.Errorf("reading password: %w", err)
	}

	return password, nil
}

func trimLineBreak(b []byte) []byte {
	b = bytes.TrimSuffix(b, []byte("\n"))

	return bytes.TrimSuffix(b, []byte("\r"))
}

// Wipe overwrites b with zeros.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
