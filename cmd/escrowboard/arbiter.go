package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	arbiteradapter "github.com/Strob0t/EscrowBoard/internal/adapter/arbiter"
	cfnats "github.com/Strob0t/EscrowBoard/internal/adapter/nats"
	"github.com/Strob0t/EscrowBoard/internal/adapter/natskv"
	"github.com/Strob0t/EscrowBoard/internal/adapter/postgres"
	"github.com/Strob0t/EscrowBoard/internal/config"
)

// newArbiterCmd manages the arbiters table of the postgres backend.
func newArbiterCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "arbiter",
		Short: "Manage arbiter grants (postgres backend)",
	}

	var grantedBy string
	grant := &cobra.Command{
		Use:   "grant <caller>",
		Short: "Allow caller to settle rejected tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGrants(cmd, flags, args[0], func(g *postgres.ArbiterGrants) error {
				if err := g.Grant(cmd.Context(), args[0], grantedBy); err != nil {
					return err
				}
				cmd.Printf("granted arbiter %s\n", args[0])
				return nil
			})
		},
	}
	grant.Flags().StringVar(&grantedBy, "by", os.Getenv("USER"), "operator recorded as granting the capability")

	revoke := &cobra.Command{
		Use:   "revoke <caller>",
		Short: "Withdraw the arbiter capability",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGrants(cmd, flags, args[0], func(g *postgres.ArbiterGrants) error {
				if err := g.Revoke(cmd.Context(), args[0]); err != nil {
					return err
				}
				cmd.Printf("revoked arbiter %s\n", args[0])
				return nil
			})
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List granted arbiters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withGrants(cmd, flags, "", func(g *postgres.ArbiterGrants) error {
				callers, err := g.List(cmd.Context())
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				_, _ = w.Write([]byte("CALLER\n"))
				for _, c := range callers {
					_, _ = w.Write([]byte(c + "\n"))
				}
				return w.Flush()
			})
		},
	}

	cmd.AddCommand(grant, revoke, list)
	return cmd
}

// withGrants runs fn against the arbiters table. When fn changed the grant of
// caller, the decision cached in the shared L2 bucket is dropped so replicas
// consult the table again.
func withGrants(cmd *cobra.Command, flags *rootFlags, caller string, fn func(*postgres.ArbiterGrants) error) error {
	cfg, err := flags.load()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	defer pool.Close()

	grants := postgres.NewArbiterGrants(pool)
	if err := fn(grants); err != nil {
		return err
	}
	if caller == "" || cfg.NATS.URL == "" {
		return nil
	}
	return forgetArbiter(ctx, cfg, grants, caller)
}

func forgetArbiter(ctx context.Context, cfg *config.Config, grants *postgres.ArbiterGrants, caller string) error {
	queue, err := cfnats.Connect(ctx, cfg.NATS.URL, cfg.NATS.Stream)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Close() }()

	kv, err := queue.KeyValue(ctx, cfg.Cache.L2Bucket, cfg.Cache.L2TTL)
	if err != nil {
		return err
	}
	cached := arbiteradapter.NewCached(grants, natskv.New(kv), cfg.Cache.ArbiterTTL)
	if err := cached.Forget(ctx, caller); err != nil {
		return fmt.Errorf("drop cached arbiter decision: %w", err)
	}
	return nil
}
