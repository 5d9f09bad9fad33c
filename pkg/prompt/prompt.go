// pkg/prompt/prompt.go - version suppliers for locally staged installers.

package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/windowsadmins/cimisync/pkg/config"
)

// ErrNonInteractive is returned when a version is needed but prompting is
// disabled.
var ErrNonInteractive = errors.New("version input required but running non-interactively")

// Console asks for the version on a terminal. Concurrent callers are
// serialised so prompts never interleave.
type Console struct {
	mu     sync.Mutex
	reader *bufio.Reader
	out    io.Writer
}

// NewConsole prompts on out and reads answers from in.
func NewConsole(in io.Reader, out io.Writer) *Console {
	return &Console{reader: bufio.NewReader(in), out: out}
}

// Stdio is a Console on the process standard streams.
func Stdio() *Console {
	return NewConsole(os.Stdin, os.Stdout)
}

// SupplyVersion prints a prompt naming the picked file and returns the
// trimmed answer. An empty answer is returned as-is and rejected by the
// caller's validation.
func (c *Console) SupplyVersion(ctx context.Context, entry config.SoftwareEntry, file string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	fmt.Fprintf(c.out, "Version for %s [%s]: ", entry.DisplayName(), filepath.Base(file))
	line, err := c.reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("reading version: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// NonInteractive fails fast instead of blocking on input.
type NonInteractive struct{}

func (NonInteractive) SupplyVersion(_ context.Context, entry config.SoftwareEntry, file string) (string, error) {
	return "", fmt.Errorf("%w: %s (%s)", ErrNonInteractive, entry.DisplayName(), filepath.Base(file))
}

// Fixed returns preset versions keyed by SoftwareName, case-insensitively.
// Names without a preset fall through to Next, or fail when Next is nil.
type Fixed struct {
	Versions map[string]string
	Next     interface {
		SupplyVersion(ctx context.Context, entry config.SoftwareEntry, file string) (string, error)
	}
}

func (f Fixed) SupplyVersion(ctx context.Context, entry config.SoftwareEntry, file string) (string, error) {
	for name, v := range f.Versions {
		if strings.EqualFold(name, entry.SoftwareName) {
			return v, nil
		}
	}
	if f.Next != nil {
		return f.Next.SupplyVersion(ctx, entry, file)
	}
	return "", fmt.Errorf("no preset version for %s", entry.SoftwareName)
}
