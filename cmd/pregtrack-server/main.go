package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/reprotech/pregtrack/internal/config"
	"github.com/reprotech/pregtrack/internal/domain/pregnancy"
	"github.com/reprotech/pregtrack/internal/platform/auth"
	"github.com/reprotech/pregtrack/internal/platform/clock"
	"github.com/reprotech/pregtrack/internal/platform/db"
	"github.com/reprotech/pregtrack/migrations"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pregtrack-server",
		Short:         "Embryo transfer pregnancy tracking API",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(branchCmd())
	root.AddCommand(calendarCmd())
	root.AddCommand(tokenCmd())
	return root
}

func newLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	if cfg.IsDev() {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return zerolog.New(out).Level(level).With().Timestamp().Str("service", "pregtrack").Logger()
}

// loadConfig loads and validates configuration for commands that need the
// database.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func poolConfig(cfg *config.Config) db.PoolConfig {
	return db.PoolConfig{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	}
}

// migrationSource returns the embedded migrations, or dir when set.
func migrationSource(dir string) fs.FS {
	if dir != "" {
		return os.DirFS(dir)
	}
	return migrations.FS
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg, newLogger(cfg, os.Stdout))
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or inspect database migrations for a branch",
	}

	var branch, dir string
	cmd.PersistentFlags().StringVar(&branch, "branch", "", "Branch identifier (defaults to DEFAULT_BRANCH)")
	cmd.PersistentFlags().StringVar(&dir, "dir", "", "Read migrations from this directory instead of the embedded set")

	withMigrator := func(cmd *cobra.Command, fn func(ctx context.Context, m *db.Migrator, schema string) error) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if branch == "" {
			branch = cfg.DefaultBranch
		}
		if !db.ValidBranchID(branch) {
			return fmt.Errorf("invalid branch identifier: %q", branch)
		}
		ctx := cmd.Context()
		pool, err := db.NewPool(ctx, poolConfig(cfg))
		if err != nil {
			return err
		}
		defer pool.Close()
		return fn(ctx, db.NewMigrator(pool, migrationSource(dir)), db.SchemaName(branch))
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator, schema string) error {
				n, err := m.Up(ctx, schema)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) to %s.\n", n, schema)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator, schema string) error {
				statuses, err := m.Status(ctx, schema)
				if err != nil {
					return fmt.Errorf("migration status: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Migration status for %s\n", schema)
				return printMigrationStatus(cmd.OutOrStdout(), statuses)
			})
		},
	})
	return cmd
}

func printMigrationStatus(w io.Writer, statuses []db.MigrationStatus) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tNAME\tSTATUS\tAPPLIED AT")
	for _, s := range statuses {
		state, at := "pending", ""
		if s.Applied {
			state = "applied"
			if s.AppliedAt != nil {
				at = s.AppliedAt.UTC().Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(tw, "%03d\t%s\t%s\t%s\n", s.Version, s.Name, state, at)
	}
	return tw.Flush()
}

func branchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "branch",
		Short: "Manage branch schemas",
	}

	var name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a branch schema and apply all migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--name is required")
			}
			if !db.ValidBranchID(name) {
				return fmt.Errorf("invalid branch identifier: %q", name)
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			pool, err := db.NewPool(ctx, poolConfig(cfg))
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := db.CreateBranchSchema(ctx, pool, name, db.NewMigrator(pool, migrations.FS)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Branch %s ready in schema %s.\n", name, db.SchemaName(name))
			return nil
		},
	}
	create.Flags().StringVar(&name, "name", "", "Branch identifier (letters, digits, underscore)")
	cmd.AddCommand(create)
	return cmd
}

func calendarCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calendar",
		Short: "Calendar utilities",
	}

	var branch, out, status, vet string
	export := &cobra.Command{
		Use:   "export",
		Short: "Write pending checkpoints of a branch as an iCalendar file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if branch == "" {
				branch = cfg.DefaultBranch
			}
			filter := pregnancy.TransferFilter{Status: pregnancy.TrackingState(strings.ToUpper(status)), Veterinarian: vet}
			if filter.Status != "" && !filter.Status.Valid() {
				return fmt.Errorf("invalid status %q", status)
			}

			ctx := cmd.Context()
			pool, err := db.NewPool(ctx, poolConfig(cfg))
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := pregnancy.NewService(pregnancy.NewTransferRepoPG(pool), clock.System, newLogger(cfg, os.Stderr))
			var ics string
			err = db.WithBranch(ctx, pool, branch, func(ctx context.Context) error {
				var err error
				ics, err = svc.ExportCalendar(ctx, filter)
				return err
			})
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), out, ics)
		},
	}
	export.Flags().StringVar(&branch, "branch", "", "Branch identifier (defaults to DEFAULT_BRANCH)")
	export.Flags().StringVar(&out, "out", "-", "Output file, - for stdout")
	export.Flags().StringVar(&status, "status", "", "Only transfers with this tracking status")
	export.Flags().StringVar(&vet, "veterinarian", "", "Only transfers of this veterinarian")
	cmd.AddCommand(export)
	return cmd
}

func writeOutput(stdout io.Writer, path, content string) error {
	if path == "" || path == "-" {
		_, err := io.WriteString(stdout, content)
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

func tokenCmd() *cobra.Command {
	var subject, name, branch string
	var roles []string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if branch == "" {
				branch = cfg.DefaultBranch
			}
			for _, r := range roles {
				if !auth.HasAnyRole([]string{r}, auth.ReadRoles...) {
					return fmt.Errorf("unknown role %q", r)
				}
			}
			token, err := auth.IssueToken(jwtConfig(cfg), subject, name, branch, roles, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "User id placed in the sub claim")
	cmd.Flags().StringVar(&name, "name", "", "Display name recorded on checkpoint updates")
	cmd.Flags().StringVar(&branch, "branch", "", "Branch the token is scoped to")
	cmd.Flags().StringSliceVar(&roles, "role", []string{"viewer"}, "Roles granted (repeatable)")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func jwtConfig(cfg *config.Config) auth.JWTConfig {
	return auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		SigningKey: []byte(cfg.AuthSigningKey),
	}
}
