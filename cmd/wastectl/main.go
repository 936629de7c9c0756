// Command wastectl runs offline maintenance against the waste portal database.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"wasteportal-backend/internal/config"
	"wasteportal-backend/internal/database"
	"wasteportal-backend/internal/export"
	"wasteportal-backend/internal/logging"
	"wasteportal-backend/internal/models"
	"wasteportal-backend/internal/query"
	"wasteportal-backend/internal/seed"
	"wasteportal-backend/internal/summary"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Replaced in tests.
var (
	loadConfig = config.Load
	openDB     = func(cfg *config.Config, logger *zap.Logger) (*gorm.DB, error) {
		db, err := database.Open(cfg.DatabaseDriver, cfg.DatabaseDSN, logger)
		if err != nil {
			return nil, err
		}
		if err := database.Migrate(db); err != nil {
			return nil, err
		}
		return db, nil
	}
)

type cli struct {
	verbose bool
	envFile string

	cfg    *config.Config
	logger *zap.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "wastectl",
		Short:         "Maintenance tasks for the waste portal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var files []string
			if c.envFile != "" {
				files = append(files, c.envFile)
			}
			cfg, err := loadConfig(files...)
			if err != nil {
				return err
			}
			level := cfg.LogLevel
			if c.verbose {
				level = "debug"
			}
			logger, err := logging.New(level)
			if err != nil {
				return err
			}
			c.cfg, c.logger = cfg, logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&c.envFile, "env-file", "", "Load environment from this file instead of .env")

	root.AddCommand(
		c.migrateCmd(),
		c.createAdminCmd(),
		c.seedCmd(),
		c.exportCmd(),
		c.recomputeCmd(),
	)
	return root
}

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := openDB(c.cfg, c.logger); err != nil {
				return err
			}
			c.logger.Info("schema migrated", zap.String("driver", c.cfg.DatabaseDriver))
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}

func (c *cli) createAdminCmd() *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an admin account unless the username exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if username == "" {
				username = c.cfg.AdminUsername
			}
			if password == "" {
				password = c.cfg.AdminPassword
			}
			if len(password) < 8 {
				return errors.New("password must be at least 8 characters (use --password or ADMIN_PASSWORD)")
			}

			db, err := openDB(c.cfg, c.logger)
			if err != nil {
				return err
			}
			created, err := database.EnsureAdmin(db, username, password)
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "admin %q created\n", username)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "user %q already exists\n", username)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "Admin username (default ADMIN_USERNAME)")
	cmd.Flags().StringVar(&password, "password", "", "Admin password (default ADMIN_PASSWORD)")
	return cmd
}

func (c *cli) seedCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load facilities and users from a YAML file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := seed.Load(file)
			if err != nil {
				return err
			}
			db, err := openDB(c.cfg, c.logger)
			if err != nil {
				return err
			}
			res, err := seed.Apply(db, f)
			if err != nil {
				return err
			}
			c.logger.Debug("seed applied", zap.String("file", file))
			fmt.Fprintf(cmd.OutOrStdout(), "facilities: %d created, %d updated; users: %d created, %d skipped\n",
				res.FacilitiesCreated, res.FacilitiesUpdated, res.UsersCreated, res.UsersSkipped)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Seed YAML file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func parseDateFlag(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	d, err := query.ParseDate(value)
	if err != nil {
		return nil, fmt.Errorf("--%s must be YYYY-MM-DD", name)
	}
	return &d, nil
}

func (c *cli) exportCmd() *cobra.Command {
	var format, out, from, to, facility string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export daily summaries as CSV or XLSX",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			fromDate, err := parseDateFlag("from", from)
			if err != nil {
				return err
			}
			toDate, err := parseDateFlag("to", to)
			if err != nil {
				return err
			}

			db, err := openDB(c.cfg, c.logger)
			if err != nil {
				return err
			}

			var facilityID *uint
			if facility != "" {
				var fac models.Facility
				if err := db.Where("code = ?", facility).First(&fac).Error; err != nil {
					return fmt.Errorf("unknown facility %q", facility)
				}
				facilityID = &fac.ID
			}

			rows, err := summary.Query(db, facilityID, fromDate, toDate)
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if out != "" && out != "-" {
				file, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("create %s: %w", out, err)
				}
				defer file.Close()
				w = file
			}
			if err := export.Write(w, summary.Table(rows), f); err != nil {
				return err
			}
			c.logger.Info("summaries exported", zap.Int("rows", len(rows)), zap.String("format", string(f)), zap.String("out", out))
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "csv", "csv or xlsx")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default stdout)")
	cmd.Flags().StringVar(&from, "from", "", "First day, YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "Last day, YYYY-MM-DD")
	cmd.Flags().StringVar(&facility, "facility", "", "Facility code")
	return cmd
}

func (c *cli) recomputeCmd() *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "recompute",
		Short: "Rebuild daily summaries from verified submissions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fromDate, err := parseDateFlag("from", from)
			if err != nil {
				return err
			}
			toDate, err := parseDateFlag("to", to)
			if err != nil {
				return err
			}
			if fromDate == nil || toDate == nil {
				return errors.New("--from and --to are required")
			}
			if toDate.Before(*fromDate) {
				return errors.New("--to is before --from")
			}

			db, err := openDB(c.cfg, c.logger)
			if err != nil {
				return err
			}
			n, err := summary.RecomputeRange(db, *fromDate, *toDate)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "recomputed %d facility days\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "First day, YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "Last day, YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}
