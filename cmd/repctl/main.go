// Command repctl is the admin tool for the representative lookup database:
// schema migration, seeding and read-only queries from the shell.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/EmpoweredVote/rep-lookup/internal/config"
	"github.com/EmpoweredVote/rep-lookup/internal/db"
	"github.com/EmpoweredVote/rep-lookup/internal/logger"
	"github.com/EmpoweredVote/rep-lookup/internal/representatives"
	"github.com/EmpoweredVote/rep-lookup/internal/seeds"
	"github.com/EmpoweredVote/rep-lookup/internal/validate"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const Version = "1.0.0"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// env is what every subcommand that touches the database needs.
type env struct {
	cfg   config.Config
	log   *zap.Logger
	db    *gorm.DB
	store *representatives.Store
}

func open() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Log.Level, "console", "repctl")
	if err != nil {
		return nil, err
	}
	gdb, err := db.Connect(cfg.Database, log)
	if err != nil {
		return nil, err
	}
	return &env{
		cfg:   cfg,
		log:   log,
		db:    gdb,
		store: representatives.NewStore(gdb, representatives.WithQueryTimeout(cfg.Database.QueryTimeout)),
	}, nil
}

func (e *env) close() {
	_ = db.Close(e.db)
	_ = e.log.Sync()
}

// withEnv opens the database for the duration of fn.
func withEnv(fn func(ctx context.Context, e *env, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		e, err := open()
		if err != nil {
			return err
		}
		defer e.close()
		return fn(cmd.Context(), e, args)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "repctl",
		Short:        "Representative lookup admin tool",
		SilenceUsage: true,
	}

	cmd.AddCommand(
		migrateCmd(),
		seedCmd(),
		lookupCmd(),
		searchCmd(),
		showCmd(),
		statsCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "repctl version %s\n", Version)
			},
		},
	)
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the geography, representatives and rep_geography_map tables",
		Args:  cobra.NoArgs,
		RunE: withEnv(func(_ context.Context, e *env, _ []string) error {
			if err := representatives.Migrate(e.db); err != nil {
				return err
			}
			e.log.Info("[repctl] migration complete")
			return nil
		}),
	}
}

func seedCmd() *cobra.Command {
	var (
		file    string
		migrate bool
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the demo dataset, or a YAML dataset with --file",
		Args:  cobra.NoArgs,
		RunE: withEnv(func(ctx context.Context, e *env, _ []string) error {
			if migrate {
				if err := representatives.Migrate(e.db); err != nil {
					return err
				}
			}

			entries, err := loadEntries(file)
			if err != nil {
				return err
			}
			sum, err := seeds.Seed(ctx, e.db, entries, e.log)
			if err != nil {
				return err
			}
			e.log.Info("[repctl] seed complete",
				zap.Int("geographies", sum.Geographies),
				zap.Int("representatives", sum.Representatives),
				zap.Int64("pruned_mappings", sum.Pruned),
			)
			return nil
		}),
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML dataset (default: built-in demo data)")
	cmd.Flags().BoolVar(&migrate, "migrate", true, "Run migrations first")
	return cmd
}

func loadEntries(file string) ([]seeds.Entry, error) {
	if file == "" {
		return seeds.Demo()
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	return seeds.Parse(data)
}

func lookupCmd() *cobra.Command {
	var (
		includeInactive bool
		branch          string
	)
	cmd := &cobra.Command{
		Use:   "lookup <zip>",
		Short: "Show the representatives serving a ZIP code",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(func(ctx context.Context, e *env, args []string) error {
			q, err := validate.ZipQuery(url.Values{
				"zip":              {args[0]},
				"include_inactive": {strconv.FormatBool(includeInactive)},
				"branch":           {branch},
			})
			if err != nil {
				return err
			}
			f := representatives.Filter{IncludeInactive: q.IncludeInactive, Branch: representatives.Branch(q.Branch)}

			geo, err := e.store.ResolveByZip(ctx, q.Zip)
			if err != nil {
				return err
			}
			rows, err := e.store.ResolveForGeography(ctx, geo.ID, f)
			if err != nil {
				return err
			}
			return printJSON(os.Stdout, representatives.AssembleZip(geo, rows, f, time.Now()))
		}),
	}
	cmd.Flags().BoolVar(&includeInactive, "include-inactive", false, "Include inactive representatives")
	cmd.Flags().StringVar(&branch, "branch", "", "Only this branch (federal, state, local)")
	return cmd
}

func searchCmd() *cobra.Command {
	var name, party, branch, state string
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search active representatives by name, party, branch or state",
		Args:  cobra.NoArgs,
		RunE: withEnv(func(ctx context.Context, e *env, _ []string) error {
			q, err := validate.SearchQuery(url.Values{
				"name":   {name},
				"party":  {party},
				"branch": {branch},
				"state":  {state},
				"limit":  {strconv.Itoa(limit)},
				"offset": {strconv.Itoa(offset)},
			})
			if err != nil {
				return err
			}
			p := representatives.SearchParams{
				Name:   q.Name,
				Party:  q.Party,
				Branch: representatives.Branch(q.Branch),
				State:  q.State,
				Limit:  q.Limit,
				Offset: q.Offset,
			}
			res, err := e.store.Search(ctx, p)
			if err != nil {
				return err
			}
			return printJSON(os.Stdout, representatives.AssembleSearch(res, p, time.Now()))
		}),
	}
	cmd.Flags().StringVar(&name, "name", "", "Case-insensitive name substring")
	cmd.Flags().StringVar(&party, "party", "", "Case-insensitive party substring")
	cmd.Flags().StringVar(&branch, "branch", "", "federal, state or local")
	cmd.Flags().StringVar(&state, "state", "", "Two-letter state code")
	cmd.Flags().IntVar(&limit, "limit", validate.DefaultSearchLimit, "Page size (1-100)")
	cmd.Flags().IntVar(&offset, "offset", 0, "Rows to skip")
	return cmd
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one representative and the areas it serves",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(func(ctx context.Context, e *env, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil || id == 0 {
				return fmt.Errorf("invalid representative ID %q", args[0])
			}
			rep, areas, err := e.store.GetByID(ctx, uint(id))
			if err != nil {
				return err
			}
			return printJSON(os.Stdout, representatives.AssembleDetail(rep, areas, time.Now()))
		}),
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print aggregate counts",
		Args:  cobra.NoArgs,
		RunE: withEnv(func(ctx context.Context, e *env, _ []string) error {
			st, err := e.store.Stats(ctx)
			if err != nil {
				return err
			}
			return printJSON(os.Stdout, st)
		}),
	}
}
