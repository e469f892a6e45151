// Package clipboard copies text (stream URLs) to the system clipboard.
package clipboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/atotto/clipboard"
)

// ErrNoClipboard is returned when neither the clipboard library nor any
// clipboard tool could take the text.
var ErrNoClipboard = errors.New("no clipboard available")

// Service writes to the system clipboard. atotto/clipboard is tried first;
// if it fails, the configured command or a platform tool is run with the text
// on stdin.
type Service struct {
	command string
	logger  *slog.Logger

	writeAll  func(string) error
	run       func(ctx context.Context, name string, args []string, stdin string) error
	lookPath  func(string) bool
	goos      string
	detectWSL func() bool
}

// NewService creates a clipboard service. command overrides the fallback
// tool, e.g. "wl-copy --primary".
func NewService(command string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		command:   command,
		logger:    logger.With("component", "clipboard"),
		writeAll:  clipboard.WriteAll,
		run:       runWithStdin,
		lookPath:  commandExists,
		goos:      runtime.GOOS,
		detectWSL: isWSL,
	}
}

// Write copies text to the clipboard.
func (s *Service) Write(ctx context.Context, text string) error {
	err := s.writeAll(text)
	if err == nil {
		s.logger.Debug("copied to clipboard", "length", len(text))
		return nil
	}
	s.logger.Warn("failed to copy to clipboard using primary method", "error", err)

	var parts []string
	if s.command != "" {
		parts = parseCommand(s.command)
		if len(parts) == 0 {
			return fmt.Errorf("invalid clipboard command: %q", s.command)
		}
	} else {
		parts = defaultCommand(s.goos, s.goos == "linux" && s.detectWSL(), s.lookPath)
		if len(parts) == 0 {
			return fmt.Errorf("%w on %s", ErrNoClipboard, s.goos)
		}
	}

	if err := s.run(ctx, parts[0], parts[1:], text); err != nil {
		return fmt.Errorf("clipboard command %s failed: %w", parts[0], err)
	}
	s.logger.Debug("copied to clipboard", "command", parts[0], "length", len(text))
	return nil
}

// defaultCommand picks the platform clipboard tool.
func defaultCommand(goos string, wsl bool, exists func(string) bool) []string {
	switch goos {
	case "windows":
		return []string{"clip.exe"}
	case "darwin":
		return []string{"pbcopy"}
	case "linux":
		if wsl {
			return []string{"clip.exe"}
		}
		switch {
		case exists("wl-copy"):
			return []string{"wl-copy"}
		case exists("xclip"):
			return []string{"xclip", "-selection", "clipboard"}
		case exists("xsel"):
			return []string{"xsel", "--clipboard", "--input"}
		}
	}
	return nil
}

func runWithStdin(ctx context.Context, name string, args []string, stdin string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = strings.NewReader(stdin)
	return cmd.Run()
}

// parseCommand splits a command line into arguments, respecting quotes
func parseCommand(command string) []string {
	var (
		parts     []string
		current   strings.Builder
		inQuotes  bool
		quoteChar rune
	)

	flush := func() {
		if current.Len() > 0 {
			parts = append(parts, current.String())
			current.Reset()
		}
	}

	for _, char := range command {
		switch {
		case char == '\'' || char == '"':
			if !inQuotes {
				inQuotes = true
				quoteChar = char
			} else if char == quoteChar {
				inQuotes = false
			} else {
				current.WriteRune(char)
			}
		case char == ' ' && !inQuotes:
			flush()
		default:
			current.WriteRune(char)
		}
	}
	flush()

	return parts
}

// isWSL checks /proc/version for a Microsoft kernel
func isWSL() bool {
	version, err := os.ReadFile("/proc/version")
	if err != nil {
		return false
	}
	v := strings.ToLower(string(version))
	return strings.Contains(v, "microsoft") || strings.Contains(v, "wsl")
}

func commandExists(cmd string) bool {
	_, err := exec.LookPath(cmd)
	return err == nil
}
