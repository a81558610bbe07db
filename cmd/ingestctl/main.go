package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/james-langridge/mars-vista-api-sub000/pkg/app/ingestor"
	"github.com/james-langridge/mars-vista-api-sub000/pkg/auth"
	"github.com/james-langridge/mars-vista-api-sub000/pkg/config"
	"github.com/james-langridge/mars-vista-api-sub000/pkg/pgutil"
	"github.com/james-langridge/mars-vista-api-sub000/pkg/ratelimit"
	"github.com/james-langridge/mars-vista-api-sub000/pkg/scheduler"
)

var (
	configPath string
	jsonOutput bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "ingestctl",
		Short:        "Operate the rover ingestion service",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")

	rootCmd.AddCommand(runCmd(), statusCmd(), resetCmd(), tokenCmd(), sweepCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// env is what every command needs: config, logger and the wired pipeline.
type env struct {
	cfg    *config.Config
	logger *zap.Logger
	c      *ingestor.Components
}

func open(ctx context.Context) (*env, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}
	db, err := pgutil.ConnectDB(ctx, &cfg.Database, logger)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		_ = db.Close()
		_ = logger.Sync()
	}
	return &env{cfg: cfg, logger: logger, c: ingestor.Wire(cfg, db, logger)}, closeFn, nil
}

func runCmd() *cobra.Command {
	var lookback int
	cmd := &cobra.Command{
		Use:   "run [source...]",
		Short: "Run an incremental ingestion for the given sources, or all active sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, closeFn, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			if len(args) == 0 {
				results, err := e.c.Runner.RunOnce(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOutput {
					type passResult struct {
						Source  string                `json:"source"`
						Outcome *scheduler.RunOutcome `json:"outcome,omitempty"`
						Error   string                `json:"error,omitempty"`
					}
					out := make([]passResult, len(results))
					for i, res := range results {
						out[i] = passResult{Source: res.Source, Outcome: res.Outcome}
						if res.Err != nil {
							out[i].Error = res.Err.Error()
						}
					}
					return printJSON(out)
				}
				for _, res := range results {
					if res.Err != nil {
						fmt.Printf("%s: error: %v\n", res.Source, res.Err)
						continue
					}
					printOutcome(res.Outcome.Source, string(res.Outcome.Status), res.Outcome.WindowsScraped, res.Outcome.RecordsAdded, res.Outcome.Watermark)
				}
				return nil
			}

			lb := e.cfg.Scheduler.Lookback
			if cmd.Flags().Changed("lookback") {
				lb = lookback
			}
			for _, source := range args {
				out, err := e.c.Scheduler.RunIncremental(cmd.Context(), source, lb)
				if err != nil {
					return fmt.Errorf("%s: %w", source, err)
				}
				if jsonOutput {
					if err := printJSON(out); err != nil {
						return err
					}
					continue
				}
				printOutcome(out.Source, string(out.Status), out.WindowsScraped, out.RecordsAdded, out.Watermark)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&lookback, "lookback", "l", 0, "Trailing windows to re-scan (defaults to scheduler.lookback)")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the cursor of every source",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, closeFn, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			cs, err := e.c.Cursors.List(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cs)
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SOURCE\tWATERMARK\tSTATUS\tLAST RUN\tADDED\tERROR")
			for _, c := range cs {
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%d\t%s\n",
					c.SourceID, c.LastWatermark, c.LastRunStatus, formatTime(c.LastRunAt), c.RecordsAddedLastRun, c.ErrorMessage)
			}
			return tw.Flush()
		},
	}
}

func resetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <source> <window>",
		Short: "Overwrite a source's watermark",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			window, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil || window < 0 {
				return fmt.Errorf("window must be a non-negative integer: %q", args[1])
			}

			e, closeFn, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			if _, ok := e.cfg.Source(args[0]); !ok {
				return fmt.Errorf("unknown source %q", args[0])
			}
			c, err := e.c.Cursors.Reset(cmd.Context(), args[0], window)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(c)
			}
			fmt.Printf("%s: watermark set to %d\n", c.SourceID, c.LastWatermark)
			return nil
		},
	}
}

func tokenCmd() *cobra.Command {
	var (
		tier  string
		admin bool
		ttl   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token <identity>",
		Short: "Issue an API credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if tier == "" {
				tier = cfg.RateLimit.DefaultTier
			}
			if _, ok := cfg.RateLimit.Tiers[tier]; !ok {
				return fmt.Errorf("unknown tier %q", tier)
			}

			raw, err := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.Issuer).Issue(args[0], tier, admin, ttl)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(map[string]string{"identity": args[0], "tier": tier, "token": raw})
			}
			fmt.Println(raw)
			return nil
		},
	}
	cmd.Flags().StringVarP(&tier, "tier", "t", "", "Rate limit tier (defaults to rate_limit.default_tier)")
	cmd.Flags().BoolVar(&admin, "admin", false, "Allow the scraper administration endpoints")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime, 0 for no expiry")
	return cmd
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep-counters",
		Short: "Delete expired rate limit counters from postgres",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, closeFn, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			n, err := ratelimit.NewPGStore(e.c.DB).Sweep(cmd.Context(), time.Now())
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(map[string]int{"removed": n})
			}
			fmt.Printf("removed %d expired counters\n", n)
			return nil
		},
	}
}

func printOutcome(source, status string, windows, added int, watermark int64) {
	fmt.Printf("%s: %s, %d windows scraped, %d records added, watermark %d\n", source, status, windows, added, watermark)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
