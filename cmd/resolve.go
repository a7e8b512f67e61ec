package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"bilirelay/internal/download"
	"bilirelay/internal/httputil"
	"bilirelay/internal/media"
	"bilirelay/internal/player"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <link or text>",
	Short: "Resolve a link to a direct media URL",
	Args:  cobra.MinimumNArgs(1),
	RunE:  resolveRun,
}

var (
	labelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")).Width(9)
	titleStyle = lipgloss.NewStyle().Bold(true)
	urlStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	dimStyle   = lipgloss.NewStyle().Faint(true)
)

func init() {
	addResolveFlags(resolveCmd)
}

func addResolveFlags(c *cobra.Command) {
	c.Flags().BoolVarP(&flagJSON, "json", "j", false, "Output the resolution as JSON")
	c.Flags().StringVarP(&flagPlay, "play", "p", "", "Play with a local player: mpv | vlc")
	c.Flags().StringVarP(&flagDownload, "download", "d", "", "Download to this directory instead of printing")
}

func resolveRun(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return cmd.Help()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// Validate the player before any network call.
	var pl player.Player
	if flagPlay != "" {
		var err error
		if pl, err = player.New(flagPlay); err != nil {
			return err
		}
	}

	text := strings.Join(args, " ")
	res, err := newResolver(cfg).Resolve(ctx, text, media.Quality(cfg.Quality))
	if err != nil {
		return fmt.Errorf("resolving %q: %w", text, err)
	}

	switch {
	case flagJSON:
		out := struct {
			Status string `json:"status"`
			*media.Resolution
		}{"success", res}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return err
		}
	case term.IsTerminal(int(os.Stdout.Fd())):
		printStyled(os.Stdout, res)
	default:
		// Piped output is just the URL so it can feed other tools.
		fmt.Fprintln(os.Stdout, res.MediaURL)
	}

	if flagDownload != "" {
		// No overall deadline; large files take a while.
		path, err := download.Download(ctx, httputil.NewClient(0), res, flagDownload)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Saved to %s\n", path)
	}

	if pl != nil {
		return pl.Play(ctx, res)
	}
	return nil
}

func printStyled(w io.Writer, res *media.Resolution) {
	row := func(label, value string) string {
		return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), value)
	}

	rows := []string{
		titleStyle.Render(res.Title),
		row("id", fmt.Sprintf("%s %s", res.BVID, dimStyle.Render(fmt.Sprintf("p%d · cid %d", res.Page, res.CID)))),
	}
	if res.Author != "" {
		rows = append(rows, row("author", res.Author))
	}
	rows = append(rows,
		row("quality", fmt.Sprintf("%s %s", res.QualityName, dimStyle.Render(fmt.Sprintf("(qn %d)", int(res.Quality))))),
		row("media", urlStyle.Render(res.MediaURL)),
	)
	if res.PlayableURL != "" && !strings.HasPrefix(res.PlayableURL, "/") {
		rows = append(rows, row("relay", urlStyle.Render(res.PlayableURL)))
	}

	fmt.Fprintln(w, lipgloss.JoinVertical(lipgloss.Left, rows...))
}
