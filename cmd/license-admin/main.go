// Command license-admin is the operator tool for the license database:
// schema migration, admin bootstrap and activation key management.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/BLINK-sys/Printer-WEB-APIServer/config"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/auth"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/database"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/license"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/logging"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/vault"
)

// storeOpener yields the store a command works on and its closer
type storeOpener func(ctx context.Context, cfg *config.Config) (database.Store, func(), error)

func openStore(ctx context.Context, cfg *config.Config) (database.Store, func(), error) {
	if err := vault.LoadInto(ctx, cfg); err != nil {
		return nil, nil, err
	}
	return database.Open(ctx, cfg.DatabaseConfig)
}

func main() {
	if err := newRootCommand(config.Load, openStore).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand(loadConfig func() (*config.Config, error), open storeOpener) *cobra.Command {
	root := &cobra.Command{
		Use:          "license-admin",
		Short:        "Administer accounts and activation keys",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// keep command output readable; service logs go to stderr
			logging.SetDefault(logging.New(&logging.Config{Level: "WARN", Output: "stderr"}))
		},
	}

	withStore := func(cmd *cobra.Command, fn func(ctx context.Context, cfg *config.Config, store database.Store) error) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		store, closeStore, err := open(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeStore()
		return fn(ctx, cfg, store)
	}

	root.AddCommand(
		newMigrateCommand(withStore),
		newCreateAdminCommand(withStore),
		newGenerateKeysCommand(withStore),
		newListKeysCommand(withStore),
	)
	return root
}

type storeRunner func(cmd *cobra.Command, fn func(ctx context.Context, cfg *config.Config, store database.Store) error) error

func newMigrateCommand(withStore storeRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, cfg *config.Config, store database.Store) error {
				// opening the store runs the migrations
				if err := store.HealthCheck(ctx); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Migrations applied (%s)\n", cfg.DatabaseConfig.Driver)
				return nil
			})
		},
	}
}

func newCreateAdminCommand(withStore storeRunner) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an administrator or promote an existing account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, cfg *config.Config, store database.Store) error {
				passwords := auth.NewPasswordManager(cfg.AuthConfig.BcryptCost, cfg.AuthConfig.MinPasswordLength)
				user, created, err := auth.EnsureAdmin(ctx, store, passwords, email, password)
				if err != nil {
					return err
				}
				if created {
					fmt.Fprintf(cmd.OutOrStdout(), "Admin %s created (id %d)\n", user.Email, user.ID)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "User %s promoted to admin (id %d)\n", user.Email, user.ID)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "admin email address")
	cmd.Flags().StringVar(&password, "password", "", "password; required for a new account")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newGenerateKeysCommand(withStore storeRunner) *cobra.Command {
	var (
		count     int
		days      int
		soldTo    string
		soldEmail string
		price     float64
		notes     string
		createdBy string
	)

	cmd := &cobra.Command{
		Use:   "generate-keys",
		Short: "Generate a batch of activation keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, cfg *config.Config, store database.Store) error {
				svc := license.NewService(store, license.Config{
					TrialDurationDays:      cfg.LicenseConfig.TrialDurationDays,
					DefaultKeyDurationDays: cfg.LicenseConfig.DefaultKeyDurationDays,
					MaxBatchSize:           cfg.LicenseConfig.MaxBatchSize,
				})

				var admin *database.User
				if createdBy != "" {
					u, err := store.UserByEmail(ctx, strings.ToLower(strings.TrimSpace(createdBy)))
					if err != nil {
						return err
					}
					if u == nil || !u.IsAdmin {
						return fmt.Errorf("%s is not an admin account", createdBy)
					}
					admin = u
				}

				req := license.GenerateRequest{
					Count:       count,
					SoldToName:  soldTo,
					SoldToEmail: soldEmail,
					Notes:       notes,
				}
				if cmd.Flags().Changed("days") {
					req.DurationDays = &days
				}
				if cmd.Flags().Changed("price") {
					req.SoldPrice = &price
				}

				keys, err := svc.GenerateKeys(ctx, admin, req)
				if err != nil {
					return err
				}
				for _, k := range keys {
					fmt.Fprintln(cmd.OutOrStdout(), k.KeyCode)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "%d key(s) generated, %d days, status %s\n", len(keys), keys[0].DurationDays, keys[0].Status)
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 1, "number of keys (1-100)")
	cmd.Flags().IntVar(&days, "days", 0, "license duration in days (default from config)")
	cmd.Flags().StringVar(&soldTo, "sold-to", "", "buyer name; marks keys as sold")
	cmd.Flags().StringVar(&soldEmail, "sold-to-email", "", "buyer email; marks keys as sold")
	cmd.Flags().Float64Var(&price, "price", 0, "sale price per key")
	cmd.Flags().StringVar(&notes, "notes", "", "free-form notes")
	cmd.Flags().StringVar(&createdBy, "created-by", "", "email of the admin recorded as creator")
	return cmd
}

func newListKeysCommand(withStore storeRunner) *cobra.Command {
	var (
		status  string
		search  string
		page    int
		perPage int
	)

	cmd := &cobra.Command{
		Use:   "list-keys",
		Short: "List activation keys, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, cfg *config.Config, store database.Store) error {
				svc := license.NewService(store, license.DefaultConfig())
				result, err := svc.ListKeys(ctx, license.KeyQuery{
					Status:  status,
					Search:  search,
					Page:    page,
					PerPage: perPage,
				})
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tCODE\tSTATUS\tDAYS\tEMAIL\tEXPIRES")
				for _, k := range result.Keys {
					email, expires := "-", "-"
					if k.ActivatedEmail != nil {
						email = *k.ActivatedEmail
					}
					if k.ExpiresAt != nil {
						expires = k.ExpiresAt.Format(time.DateOnly)
					}
					fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%s\n", k.ID, k.KeyCode, k.Status, k.DurationDays, email, expires)
				}
				if err := w.Flush(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "page %d of %d, %d key(s)\n", result.Page, result.Pages, result.Total)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "available, sold, activated or revoked")
	cmd.Flags().StringVar(&search, "search", "", "substring of code, email or buyer")
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&perPage, "per-page", 20, "keys per page (max 100)")
	return cmd
}
