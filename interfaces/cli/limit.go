package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/kvguard/domain/ratelimit"
)

func (a *App) newLimitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "limit",
		Short: "Consume and inspect rate limit buckets",
		Long: `Operate on the configured rate limiter.

Each key has its own bucket of rate_limit.points per rate_limit.duration.
consume exits non-zero once the bucket is exhausted.

Examples:
  kvguard limit consume -c kvguard.yaml signin:10.0.0.1
  kvguard limit status -c kvguard.yaml signin:10.0.0.1
  kvguard limit reset -c kvguard.yaml signin:10.0.0.1`,
	}

	cmd.AddCommand(
		a.newLimitOpCmd("consume", "Charge one point to KEY", ratelimit.Limiter.Consume),
		a.newLimitOpCmd("status", "Show KEY's bucket without consuming", ratelimit.Limiter.Get),
		a.newLimitResetCmd(),
	)
	return cmd
}

type limitOp func(ratelimit.Limiter, context.Context, string) (ratelimit.Result, error)

func (a *App) newLimitOpCmd(use, short string, op limitOp) *cobra.Command {
	return &cobra.Command{
		Use:   use + " KEY",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.openResources(cmd.Context())
			if err != nil {
				return err
			}
			defer res.Close()

			result, err := op(res.Limiter, cmd.Context(), args[0])
			if exceeded, ok := ratelimit.IsRateLimited(err); ok {
				a.printResult(args[0], exceeded.Result)
				return err
			}
			if err != nil {
				return err
			}
			a.printResult(args[0], result)
			return nil
		},
	}
}

func (a *App) newLimitResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset KEY",
		Short: "Clear KEY's bucket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.openResources(cmd.Context())
			if err != nil {
				return err
			}
			defer res.Close()

			if err := res.Limiter.Reset(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "OK\n")
			return nil
		},
	}
}

func (a *App) printResult(key string, r ratelimit.Result) {
	fmt.Fprintf(a.stdout, "key:       %s\n", key)
	fmt.Fprintf(a.stdout, "consumed:  %d/%d\n", r.Consumed, r.Limit)
	fmt.Fprintf(a.stdout, "remaining: %d\n", r.Remaining)
	fmt.Fprintf(a.stdout, "reset_in:  %s\n", r.ResetAfter.Round(time.Millisecond))
}
