package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/kvguard/application"
	"github.com/felixgeelhaar/kvguard/domain/cache"
)

// ErrKeyNotFound is returned by cache get for a missing or expired key.
var ErrKeyNotFound = errors.New("key not found")

func (a *App) newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Read and write cache entries",
		Long: `Inspect and modify the configured cache store.

Values are stored as JSON. Arguments that are not valid JSON are stored as
JSON strings.

Examples:
  kvguard cache set -c kvguard.yaml user:1 '{"name":"ada"}' --ttl 10m
  kvguard cache get -c kvguard.yaml user:1
  kvguard cache delete-prefix -c kvguard.yaml user:
  kvguard cache flush -c kvguard.yaml --yes`,
	}

	cmd.AddCommand(
		a.newCacheGetCmd(),
		a.newCacheSetCmd(),
		a.newCacheDeleteCmd(),
		a.newCacheDeletePrefixCmd(),
		a.newCacheFlushCmd(),
	)
	return cmd
}

// withCache opens the configured resources and hands fn a JSON cache.
func (a *App) withCache(cmd *cobra.Command, fn func(*application.Resources, *application.Cache[json.RawMessage]) error) error {
	res, err := a.openResources(cmd.Context())
	if err != nil {
		return err
	}
	defer res.Close()

	return fn(res, application.NewTypedCache[json.RawMessage](res))
}

func (a *App) newCacheGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get KEY",
		Short: "Print the value stored under KEY",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withCache(cmd, func(_ *application.Resources, c *application.Cache[json.RawMessage]) error {
				value, ok, err := c.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("%w: %s", ErrKeyNotFound, args[0])
				}
				fmt.Fprintln(a.stdout, string(value))
				return nil
			})
		},
	}
}

func (a *App) newCacheSetCmd() *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Store VALUE under KEY",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value := json.RawMessage(args[1])
			if !json.Valid(value) {
				quoted, err := json.Marshal(args[1])
				if err != nil {
					return err
				}
				value = quoted
			}

			return a.withCache(cmd, func(_ *application.Resources, c *application.Cache[json.RawMessage]) error {
				var opts []time.Duration
				if ttl != 0 {
					opts = append(opts, ttl)
				}
				if err := c.Set(cmd.Context(), args[0], value, opts...); err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "OK\n")
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Time to live (default: configured cache.default_ttl)")
	return cmd
}

func (a *App) newCacheDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete KEY",
		Short: "Remove KEY",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withCache(cmd, func(_ *application.Resources, c *application.Cache[json.RawMessage]) error {
				if err := c.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "OK\n")
				return nil
			})
		},
	}
}

func (a *App) newCacheDeletePrefixCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-prefix PREFIX",
		Short: "Remove every key starting with PREFIX",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withCache(cmd, func(_ *application.Resources, c *application.Cache[json.RawMessage]) error {
				if args[0] == "" {
					return fmt.Errorf("%w: empty prefix", cache.ErrInvalidKey)
				}
				n, err := c.EvictPrefix(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "Deleted %d keys\n", n)
				return nil
			})
		},
	}
}

func (a *App) newCacheFlushCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "flush",
		Short: "Remove every entry from the store",
		Long: `Remove every entry from the configured store.

With the redis backend this runs FLUSHALL and empties the whole server,
including rate limiter buckets and keys written by other applications.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to flush without --yes")
			}
			return a.withCache(cmd, func(_ *application.Resources, c *application.Cache[json.RawMessage]) error {
				if err := c.FlushAll(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "OK\n")
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the flush")
	return cmd
}
