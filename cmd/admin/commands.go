package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/wellness-escape/vitality-hub/config"
	"github.com/wellness-escape/vitality-hub/internal/bootstrap"
	"github.com/wellness-escape/vitality-hub/internal/domain/access"
	"github.com/wellness-escape/vitality-hub/internal/domain/catalog"
	"github.com/wellness-escape/vitality-hub/internal/domain/progress"
	"github.com/wellness-escape/vitality-hub/internal/domain/shared"
	"github.com/wellness-escape/vitality-hub/internal/infrastructure/identity"
	"github.com/wellness-escape/vitality-hub/internal/infrastructure/persistence/postgres"
	"github.com/wellness-escape/vitality-hub/internal/interface/http/handlers"
)

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG
// ══════════════════════════════════════════════════════════════════════════════

func validateCatalogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate-catalog [path]",
		Short: "Validate program content (embedded program when no path is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) > 0 {
				path = args[0]
			}
			cat, err := bootstrap.LoadCatalog(path)
			if err != nil {
				return err
			}
			printCatalog(cmd.OutOrStdout(), cat)
			return nil
		},
	}
}

func printCatalog(out io.Writer, cat *catalog.Catalog) {
	p := cat.Program()
	fmt.Fprintf(out, "program %s (version %s): %s\n", p.ID, p.Version, p.Title)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "WEEK\tTITLE\tSESSIONS\tACTION STEPS\tCOACHING")
	for _, w := range p.Weeks {
		steps := 0
		if w.ActionPlan != nil {
			steps = len(w.ActionPlan.ActionSteps)
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%t\n", w.Number, w.Title, len(w.Sessions), steps, w.CoachingSession != nil)
	}
	_ = tw.Flush()

	fmt.Fprintf(out, "%d sessions, %d habits: OK\n", cat.SessionCount(), len(cat.Habits()))
}

// ══════════════════════════════════════════════════════════════════════════════
// FEATURES
// ══════════════════════════════════════════════════════════════════════════════

func featuresCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "features",
		Short: "Show feature flags as the server would see them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := e.config()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "FEATURE\tENABLED\tDESCRIPTION")
			for _, f := range cfg.Features.GetAllFeatures() {
				fmt.Fprintf(tw, "%s\t%t\t%s\n", f.Name, f.Enabled, f.Description)
			}
			return tw.Flush()
		},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CREDENTIALS
// ══════════════════════════════════════════════════════════════════════════════

func hashAPIKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-api-key <key>",
		Short: "Print the bcrypt hash to put into ADMIN_API_KEY_HASHES",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args[0]) < 16 {
				return errors.New("api key must be at least 16 characters")
			}
			hash, err := handlers.HashAPIKey(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func mintTokenCmd(e *env) *cobra.Command {
	var (
		name      string
		email     string
		hasAccess bool
		admin     bool
		ttl       time.Duration
	)

	cmd := &cobra.Command{
		Use:   "mint-token <user-id>",
		Short: "Sign a bearer token with JWT_SECRET",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := e.config()
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return errors.New("JWT_SECRET is not set")
			}
			user, err := shared.NewUserID(args[0])
			if err != nil {
				return err
			}

			if ttl <= 0 {
				ttl = cfg.Auth.TokenTTL
			}
			opts := []identity.Option{identity.WithTTL(ttl)}
			if cfg.Auth.JWTIssuer != "" {
				opts = append(opts, identity.WithIssuer(cfg.Auth.JWTIssuer))
			}
			p, err := identity.NewJWTProvider(cfg.Auth.JWTSecret, opts...)
			if err != nil {
				return err
			}

			token, err := p.Mint(access.Principal{
				Authenticated: true,
				UserID:        user,
				DisplayName:   name,
				Email:         email,
				IsAdmin:       admin,
				HasAccess:     hasAccess,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Display name claim")
	cmd.Flags().StringVar(&email, "email", "", "Email claim")
	cmd.Flags().BoolVar(&hasAccess, "access", false, "Mark the user as a paying member")
	cmd.Flags().BoolVar(&admin, "admin", false, "Mark the user as an administrator")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (default JWT_TOKEN_TTL)")
	return cmd
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

func resetProgressCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-progress <user-id>",
		Short: "Delete every stored progress record of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := e.config()
			if err != nil {
				return err
			}
			if cfg.Progress.Backend == config.BackendMemory {
				return errors.New("PROGRESS_BACKEND=memory keeps progress inside the server process; nothing to reset from here")
			}
			user, err := shared.NewUserID(args[0])
			if err != nil {
				return err
			}

			res, err := e.open(cmd.Context(), bootstrap.Options{})
			if err != nil {
				return err
			}
			defer res.Close()

			n, err := progress.NewStore(res.Medium).Reset(cmd.Context(), user)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d progress records for %s\n", n, user)
			return nil
		},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DATABASE
// ══════════════════════════════════════════════════════════════════════════════

// openDatabase подключает только PostgreSQL, без носителя прогресса и миграций.
func (e *env) openDatabase(ctx context.Context) (*bootstrap.Resources, error) {
	cfg, err := e.config()
	if err != nil {
		return nil, err
	}
	if cfg.Database.URL == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}

	dbOnly := *cfg
	dbOnly.Progress.Backend = config.BackendMemory
	dbOnly.Database.MigrateOnStart = false
	dbOnly.Redis.EventRelay = false

	return bootstrap.Open(ctx, &dbOnly, e.logger(), bootstrap.Options{NeedDatabase: true})
}

func entitlementCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entitlement",
		Short: "Inspect and change purchase entitlements",
	}

	withRepo := func(ctx context.Context, fn func(*postgres.EntitlementRepository) error) error {
		res, err := e.openDatabase(ctx)
		if err != nil {
			return err
		}
		defer res.Close()
		return fn(postgres.NewEntitlementRepository(res.DB))
	}

	var source string
	grant := &cobra.Command{
		Use:   "grant <user-id>",
		Short: "Give a user access to the full program",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := shared.NewUserID(args[0])
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(r *postgres.EntitlementRepository) error {
				if err := r.Grant(cmd.Context(), user, source); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "granted access to %s (source %s)\n", user, source)
				return nil
			})
		},
	}
	grant.Flags().StringVar(&source, "source", "admin", "Where the purchase came from")

	revoke := &cobra.Command{
		Use:   "revoke <user-id>",
		Short: "Take away a user's access",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := shared.NewUserID(args[0])
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(r *postgres.EntitlementRepository) error {
				revoked, err := r.Revoke(cmd.Context(), user)
				if err != nil {
					return err
				}
				if !revoked {
					fmt.Fprintf(cmd.OutOrStdout(), "%s had no active entitlement\n", user)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "revoked access of %s\n", user)
				return nil
			})
		},
	}

	show := &cobra.Command{
		Use:   "show <user-id>",
		Short: "Print the stored entitlement of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := shared.NewUserID(args[0])
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(r *postgres.EntitlementRepository) error {
				ent, err := r.Get(cmd.Context(), user)
				if err != nil {
					if shared.IsNotFound(err) {
						fmt.Fprintf(cmd.OutOrStdout(), "%s: no entitlement\n", user)
						return nil
					}
					return err
				}
				printEntitlement(cmd.OutOrStdout(), ent)
				return nil
			})
		},
	}

	cmd.AddCommand(grant, revoke, show)
	return cmd
}

func printEntitlement(out io.Writer, ent *postgres.Entitlement) {
	fmt.Fprintf(out, "%s: access=%t source=%s", ent.UserID, ent.HasAccess, ent.Source)
	if ent.GrantedAt != nil {
		fmt.Fprintf(out, " granted=%s", ent.GrantedAt.Format(time.RFC3339))
	}
	if ent.RevokedAt != nil {
		fmt.Fprintf(out, " revoked=%s", ent.RevokedAt.Format(time.RFC3339))
	}
	fmt.Fprintln(out)
}

func migrateCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	withMigrator := func(ctx context.Context, fn func(*postgres.Migrator) error) error {
		res, err := e.openDatabase(ctx)
		if err != nil {
			return err
		}
		defer res.Close()
		return fn(postgres.NewMigrator(res.DB))
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd.Context(), func(m *postgres.Migrator) error {
				applied, err := m.Migrate(cmd.Context())
				if err != nil {
					return err
				}
				if len(applied) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "applied migrations %v\n", applied)
				return nil
			})
		},
	}

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the latest migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd.Context(), func(m *postgres.Migrator) error {
				version, err := m.Rollback(cmd.Context())
				if err != nil {
					return err
				}
				if version == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "nothing to roll back")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "rolled back migration %d\n", version)
				return nil
			})
		},
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "List migrations and whether they are applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd.Context(), func(m *postgres.Migrator) error {
				list, err := m.Status(cmd.Context())
				if err != nil {
					return err
				}
				printMigrations(cmd.OutOrStdout(), list)
				return nil
			})
		},
	}

	cmd.AddCommand(up, down, status)
	return cmd
}

func printMigrations(out io.Writer, list []postgres.Migration) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tNAME\tAPPLIED")
	for _, m := range list {
		applied := "pending"
		if m.IsApplied {
			applied = m.AppliedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\n", m.Version, m.Name, applied)
	}
	_ = tw.Flush()
}
