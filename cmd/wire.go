package cmd

import (
	"context"

	"bilirelay/internal/cache"
	"bilirelay/internal/config"
	"bilirelay/internal/extract"
	"bilirelay/internal/httputil"
	"bilirelay/internal/provider"
	"bilirelay/internal/resolve"
)

// newResolver assembles the resolution pipeline from configuration.
func newResolver(c *config.Config) *resolve.Resolver {
	timeout := c.RequestTimeout()
	client := httputil.NewClient(timeout)

	ex := extract.New(extract.NewRedirector(client, timeout))
	p := provider.NewBilibili(c.APIBase, client, timeout)
	return resolve.New(ex, p, c.PublicURL)
}

// openCache opens the configured response cache.
func openCache(ctx context.Context, c *config.Config) (*cache.Cache, error) {
	store, err := cache.Open(ctx, cache.Options{
		Backend: c.Cache.Backend,
		Path:    c.Cache.Path,
		Redis: cache.RedisOptions{
			Addr:     c.Cache.RedisAddr,
			Password: c.Cache.RedisPassword,
			DB:       c.Cache.RedisDB,
		},
	})
	if err != nil {
		return nil, err
	}
	return cache.New(store, c.CacheTTL()), nil
}
