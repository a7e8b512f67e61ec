package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the response cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop every cached resolution",
	Args:  cobra.NoArgs,
	RunE:  cacheClearRun,
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd)
}

func cacheClearRun(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	c, err := openCache(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening cache: %w", err)
	}
	defer c.Close()

	if err := c.Clear(ctx); err != nil {
		return err
	}

	fmt.Printf("Cleared %s cache.\n", cfg.Cache.Backend)
	return nil
}
