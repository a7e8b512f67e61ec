// Package player hands a resolved stream to a local media player.
// All player invocations use exec.Command with explicit argument slices; the
// CDN's Referer and User-Agent requirements are passed as player options.
package player

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"bilirelay/internal/httputil"
	"bilirelay/internal/media"
)

// Player launches a media player for a resolution.
type Player interface {
	// Play blocks until the player exits.
	Play(ctx context.Context, res *media.Resolution) error

	// Name returns the player name.
	Name() string

	// Available checks if the player binary exists in PATH.
	Available() bool
}

// New creates a player by name.
func New(name string) (Player, error) {
	switch strings.ToLower(name) {
	case "", "mpv":
		return &command{name: "mpv", args: mpvArgs}, nil
	case "vlc":
		return &command{name: "vlc", args: vlcArgs}, nil
	default:
		return nil, fmt.Errorf("unsupported player %q (valid: mpv, vlc)", name)
	}
}

type command struct {
	name string
	args func(res *media.Resolution) []string
}

func (c *command) Name() string { return c.name }

func (c *command) Available() bool {
	_, err := exec.LookPath(c.name)
	return err == nil
}

func (c *command) Play(ctx context.Context, res *media.Resolution) error {
	path, err := exec.LookPath(c.name)
	if err != nil {
		return fmt.Errorf("%s not found in PATH: %w", c.name, err)
	}

	cmd := exec.CommandContext(ctx, path, c.args(res)...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin

	if err := cmd.Run(); err != nil {
		// mpv exits with 4 when the user quits.
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 4 {
			return nil
		}
		return fmt.Errorf("running %s: %w", c.name, err)
	}
	return nil
}

func mpvArgs(res *media.Resolution) []string {
	return []string{
		"--force-media-title=" + res.Title,
		"--referrer=" + httputil.Referer,
		"--user-agent=" + httputil.UserAgent,
		"--really-quiet",
		"--",
		res.MediaURL,
	}
}

func vlcArgs(res *media.Resolution) []string {
	return []string{
		"--meta-title=" + res.Title,
		"--http-referrer=" + httputil.Referer,
		"--http-user-agent=" + httputil.UserAgent,
		"--play-and-exit",
		res.MediaURL,
	}
}
