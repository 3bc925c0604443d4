package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"gosurv/adapters/excel"
	"gosurv/app"
	"gosurv/domain/core"
	"gosurv/domain/run"
	"gosurv/internal"
	"gosurv/internal/config"
	"gosurv/internal/container"
	"gosurv/internal/profiling"
	"gosurv/internal/report"
	"gosurv/internal/testkit"
)

func main() {
	// .env is optional; the environment wins over it
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:           "gosurv",
		Short:         "Cross-validated penalized Cox survival modeling",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newRunCmd(),
		newDescribeCmd(),
		newSimulateCmd(),
		newRunsCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRunCmd() *cobra.Command {
	var (
		dataFile   string
		sheet      string
		reportPath string
		markdown   bool
		store      bool
		asJSON     bool
		folds      int
		seed       int64
		workers    int
		ties       string
		l1Strength float64
		topK       int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Cross-validate the two-stage penalized Cox model on a CSV or XLSX export",
		Long: `Run k-fold cross-validation: fold-local preprocessing, spline design,
lasso selection, ridge refit and held-out concordance.

Unset flags fall back to the environment (CV_FOLDS, CV_SEED, L1_STRENGTH, ...).

Example: gosurv run --data wells.csv --report wells.html --store`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("data") {
				cfg.Data.File = dataFile
			}
			if flags.Changed("sheet") {
				cfg.Data.Sheet = sheet
			}
			if flags.Changed("folds") {
				cfg.Pipeline.Folds = folds
			}
			if flags.Changed("seed") {
				cfg.Pipeline.Seed = seed
			}
			if flags.Changed("workers") {
				cfg.Pipeline.Workers = workers
			}
			if flags.Changed("ties") {
				cfg.Pipeline.Ties = strings.ToLower(ties)
			}
			if flags.Changed("l1") {
				cfg.Pipeline.L1Strength = l1Strength
			}
			if flags.Changed("top-k") {
				cfg.Pipeline.SelectTopK = topK
			}
			if cfg.Data.File == "" {
				return fmt.Errorf("no dataset: pass --data or set DATA_FILE")
			}

			return runCrossValidation(cmd.Context(), cfg, runOptions{
				reportPath: reportPath,
				markdown:   markdown,
				store:      store,
				asJSON:     asJSON,
			})
		},
	}

	cmd.Flags().StringVar(&dataFile, "data", "", "CSV or XLSX subject table")
	cmd.Flags().StringVar(&sheet, "sheet", "", "Workbook sheet (default: first sheet)")
	cmd.Flags().StringVar(&reportPath, "report", "", "Write an HTML report to this path")
	cmd.Flags().BoolVar(&markdown, "markdown", false, "Write the report as Markdown instead of HTML")
	cmd.Flags().BoolVar(&store, "store", false, "Store the run in DATABASE_URL")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the run as JSON instead of the console summary")
	cmd.Flags().IntVar(&folds, "folds", 5, "Number of folds")
	cmd.Flags().Int64Var(&seed, "seed", 42, "Fold assignment seed")
	cmd.Flags().IntVar(&workers, "workers", 1, "Folds processed concurrently")
	cmd.Flags().StringVar(&ties, "ties", "efron", "Tie handling: efron|breslow")
	cmd.Flags().Float64Var(&l1Strength, "l1", 0.05, "Penalty strength of the lasso selection fit")
	cmd.Flags().IntVar(&topK, "top-k", 30, "Maximum number of selected design columns")

	return cmd
}

type runOptions struct {
	reportPath string
	markdown   bool
	store      bool
	asJSON     bool
}

func runCrossValidation(ctx context.Context, cfg *config.Config, opts runOptions) error {
	logger := internal.NewDefaultLogger()

	c, err := container.New(cfg, logger)
	if err != nil {
		return err
	}
	defer c.Shutdown(context.Background())
	if opts.store {
		if err := c.InitDatabase(ctx); err != nil {
			return err
		}
	}

	cv, err := c.Service.RunCrossValidation(ctx, app.CrossValidationRequest{
		Loader:   excel.NewFileLoaderFromConfig(cfg.Data, logger.With("ingest")),
		Pipeline: cfg.Pipeline,
		Persist:  opts.store,
	})
	if err != nil {
		return err
	}

	if opts.asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(cv); err != nil {
			return err
		}
	} else {
		report.Console(os.Stdout, cv)
	}

	if opts.reportPath != "" {
		if err := writeReport(opts.reportPath, cv, opts.markdown); err != nil {
			return err
		}
		logger.Info("Report written to %s", opts.reportPath)
	}
	if opts.store {
		fmt.Printf("Stored as run %s\n", cv.ID)
	}
	return nil
}

func writeReport(path string, cv *run.Run, markdown bool) error {
	body := report.HTML(cv)
	if markdown {
		body = report.Markdown(cv)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	return os.WriteFile(path, body, 0o644)
}

func newDescribeCmd() *cobra.Command {
	var dataFile, sheet string

	cmd := &cobra.Command{
		Use:   "describe",
		Short: "Profile the encoded covariates of an export",
		Long: `Load and encode a CSV or XLSX export, then print per-column statistics and
whether the column would be log-transformed or spline-expanded on the full table.

Example: gosurv describe --data wells.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("data") {
				cfg.Data.File = dataFile
			}
			if cmd.Flags().Changed("sheet") {
				cfg.Data.Sheet = sheet
			}
			if cfg.Data.File == "" {
				return fmt.Errorf("no dataset: pass --data or set DATA_FILE")
			}

			logger := internal.NewDefaultLogger()
			ds, err := excel.NewFileLoaderFromConfig(cfg.Data, logger.With("ingest")).Load(cmd.Context())
			if err != nil {
				return err
			}
			profiles, err := profiling.NewDataProfiler(cfg.Pipeline.SkewThreshold, cfg.Pipeline.MinDistinct).ProfileDataset(ds)
			if err != nil {
				return err
			}

			fmt.Printf("%s: %d subjects, %d events, %d columns\n\n", ds.Name(), ds.Len(), ds.EventCount(), ds.NumColumns())
			fmt.Printf("%-32s %-9s %8s %12s %12s %12s %12s %8s %5s %s\n",
				"column", "kind", "distinct", "mean", "std", "min", "max", "skew", "out", "flags")
			for _, p := range profiles {
				var flags []string
				if p.Constant {
					flags = append(flags, "constant")
				}
				if p.LogCandidate {
					flags = append(flags, "log")
				}
				if p.SplineEligible {
					flags = append(flags, "spline")
				}
				fmt.Printf("%-32s %-9s %8d %12.4g %12.4g %12.4g %12.4g %8.3f %5d %s\n",
					p.Name, p.Kind, p.Distinct, p.Mean, p.StdDev, p.Min, p.Max, p.Skewness, p.Outliers, strings.Join(flags, ","))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dataFile, "data", "", "CSV or XLSX subject table")
	cmd.Flags().StringVar(&sheet, "sheet", "", "Workbook sheet (default: first sheet)")
	return cmd
}

func newSimulateCmd() *cobra.Command {
	var (
		out string
		gen = testkit.DefaultSurvivalConfig()
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Write a synthetic failure-time export",
		Long: `Generate subjects with exponential failure times whose log hazard is linear
in the leading covariates, with random censoring and a ROUTE categorical.

Example: gosurv simulate --out synthetic.csv --n 500 --p 10 --censor 0.3 --seed 42`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				return fmt.Errorf("--out is required")
			}
			sample, err := testkit.NewSurvivalDataGenerator(gen).Generate()
			if err != nil {
				return err
			}

			switch strings.ToLower(filepath.Ext(out)) {
			case ".xlsx":
				err = sample.WriteXLSX(out)
			case ".csv":
				var f *os.File
				if f, err = os.Create(out); err != nil {
					return err
				}
				if err = sample.WriteCSV(f); err != nil {
					f.Close()
					return err
				}
				err = f.Close()
			default:
				return fmt.Errorf("unsupported output extension %q (use .csv or .xlsx)", filepath.Ext(out))
			}
			if err != nil {
				return err
			}

			events := 0
			for _, e := range sample.Events {
				if e {
					events++
				}
			}
			fmt.Printf("Wrote %d subjects (%d failures) with %d covariates to %s\n", gen.Subjects, events, gen.Covariates, out)
			return nil
		},
	}

	cmd.Flags().StringVar(&out, "out", "", "Output path (.csv or .xlsx)")
	cmd.Flags().IntVar(&gen.Subjects, "n", gen.Subjects, "Number of subjects")
	cmd.Flags().IntVar(&gen.Covariates, "p", gen.Covariates, "Number of covariates")
	cmd.Flags().IntVar(&gen.Predictive, "predictive", gen.Predictive, "Covariates that drive the hazard")
	cmd.Flags().Float64Var(&gen.Effect, "effect", gen.Effect, "Log hazard ratio of each predictive covariate")
	cmd.Flags().Float64Var(&gen.CensorRate, "censor", gen.CensorRate, "Probability that a subject is censored")
	cmd.Flags().Int64Var(&gen.Seed, "seed", gen.Seed, "Random seed")

	return cmd
}

func newRunsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "List stored runs, or show one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			c, err := container.New(cfg, internal.NewDefaultLogger())
			if err != nil {
				return err
			}
			defer c.Shutdown(context.Background())
			if err := c.InitDatabase(cmd.Context()); err != nil {
				return err
			}

			if len(args) == 1 {
				id, err := core.ParseRunID(args[0])
				if err != nil {
					return err
				}
				cv, err := c.Service.GetRun(cmd.Context(), id)
				if err != nil {
					return err
				}
				report.Console(os.Stdout, cv)
				return nil
			}

			runs, err := c.Service.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			for _, r := range runs {
				fmt.Printf("%s  %s  %-24s n=%-6d events=%-6d C=%.4f ± %.4f\n",
					r.ID, r.CreatedAt.Local().Format("2006-01-02 15:04"), r.DatasetName,
					r.Subjects, r.Events, r.Summary.Mean, r.Summary.StdDev)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs to list")
	return cmd
}
