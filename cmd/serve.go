package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"bilirelay/internal/httputil"
	"bilirelay/internal/media"
	"bilirelay/internal/proxy"
	"bilirelay/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the resolution API and streaming relay over HTTP",
	Args:  cobra.NoArgs,
	RunE:  serveRun,
}

func init() {
	serveCmd.Flags().StringVarP(&flagListen, "listen", "l", "", "Listen address (default :8080, or :$PORT)")
}

func serveRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := openCache(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening cache: %w", err)
	}
	defer func() {
		if err := c.Close(); err != nil {
			logrus.WithError(err).Warn("closing cache")
		}
	}()

	// No overall deadline: media streams are long-lived.
	px := proxy.New(httputil.NewClient(0), cfg.Proxy.AllowedHosts)

	srv := server.New(newResolver(cfg), c, px, media.Quality(cfg.Quality))

	logrus.WithFields(logrus.Fields{
		"cache":   cfg.Cache.Backend,
		"quality": cfg.Quality,
		"version": Version,
	}).Info("bilirelay ready")

	return srv.Run(ctx, cfg.Listen)
}
