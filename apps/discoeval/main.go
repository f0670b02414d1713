// Command discoeval lists, dumps, exports and serves the DiscoEval benchmark
// tasks, and bulk-loads them into Postgres.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/goldfish-inc/discoeval"
	"github.com/goldfish-inc/discoeval/fetch"
	"github.com/goldfish-inc/discoeval/sink"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	configPath string
	dataRoot   string
	verbose    bool

	cfg     *Config
	logger  *zap.Logger
	reg     *prometheus.Registry
	metrics *Metrics
}

func (a *app) readerOptions() []discoeval.Option {
	return []discoeval.Option{
		discoeval.WithLogger(a.logger),
		discoeval.WithNFC(a.cfg.NormalizeUnicode),
		discoeval.WithMaxLineBytes(a.cfg.MaxLineBytes),
	}
}

func (a *app) source(ctx context.Context) (discoeval.Source, error) {
	return fetch.New(ctx, a.cfg.DataRoot, fetch.Options{
		S3Region:   a.cfg.S3Region,
		S3Endpoint: a.cfg.S3Endpoint,
		Token:      a.cfg.HFToken,
		Logger:     a.logger,
	})
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "discoeval",
		Short: "DiscoEval discourse benchmark loader",
		Long: `discoeval resolves the twelve DiscoEval task configurations, parses their
train/validation/test splits and hands the labeled examples to a sink.

Data is read from --data-root, which may be a local directory, an
http(s):// mirror or an s3://bucket/prefix location.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(a.configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("data-root") {
				cfg.DataRoot = a.dataRoot
			}
			a.cfg = cfg

			a.logger, err = newLogger(cfg.LogLevel, a.verbose)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			a.reg = prometheus.NewRegistry()
			a.metrics = initMetrics(a.reg)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML config file")
	root.PersistentFlags().StringVar(&a.dataRoot, "data-root", "", "directory, http(s):// or s3:// root holding data/")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newTasksCmd(a),
		newFilesCmd(a),
		newDumpCmd(a),
		newExportCmd(a),
		newIngestCmd(a),
		newServeCmd(a),
	)
	return root
}

func newTasksCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List task configurations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(describeTasks(discoeval.Tasks()))
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tFAMILY\tARITY\tFORMAT\tLABELS\tPOLICY\tDESCRIPTION")
			for _, t := range discoeval.Tasks() {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%d\t%s\t%s\n",
					t.Name, t.Family, t.Arity(), t.Format, t.Labels.Len(), t.Labels.Policy(), t.Description)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print descriptors with their feature schema as JSON")
	return cmd
}

func newFilesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "files <task>",
		Short: "Print the split file locations of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := discoeval.Lookup(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, split := range discoeval.Splits {
				p, err := task.Path(split)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s\t%s\n", split, joinRoot(a.cfg.DataRoot, p))
			}
			return nil
		},
	}
}

func newDumpCmd(a *app) *cobra.Command {
	var (
		splitName string
		limit     int
	)
	cmd := &cobra.Command{
		Use:   "dump <task>",
		Short: "Write one split as JSON lines to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := discoeval.Lookup(args[0])
			if err != nil {
				return err
			}
			split, err := discoeval.ParseSplit(splitName)
			if err != nil {
				return err
			}
			src, err := a.source(cmd.Context())
			if err != nil {
				return err
			}
			loader := instrumented{next: sink.NewJSONL(cmd.OutOrStdout(), limit), metrics: a.metrics}
			_, err = sink.LoadSplits(cmd.Context(), src, task, []discoeval.Split{split}, loader, 1, a.readerOptions()...)
			return err
		},
	}
	cmd.Flags().StringVar(&splitName, "split", "train", "train, validation (valid, dev) or test")
	cmd.Flags().IntVar(&limit, "limit", 0, "stop after this many examples (0 = all)")
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export <task>",
		Short: "Write all splits of a task to an Excel workbook",
		Long: `Writes one sheet per split. --out may be a local path or an
s3://bucket/key location.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			task, err := discoeval.Lookup(args[0])
			if err != nil {
				return err
			}
			if out == "" {
				out = task.Name + ".xlsx"
			}
			src, err := a.source(ctx)
			if err != nil {
				return err
			}

			wb := sink.NewWorkbook()
			defer wb.Close()
			// One split at a time keeps the sheet order stable.
			counts, err := sink.LoadSplits(ctx, src, task, discoeval.Splits,
				instrumented{next: wb, metrics: a.metrics}, 1, a.readerOptions()...)
			if err != nil {
				return err
			}

			var buf bytes.Buffer
			if _, err := wb.WriteTo(&buf); err != nil {
				return fmt.Errorf("failed to write workbook: %w", err)
			}
			if err := writeExport(ctx, a, out, &buf); err != nil {
				return err
			}
			a.logger.Info("export written",
				zap.String("task", task.Name),
				zap.String("out", out),
				zap.Any("examples", counts))
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "output path or s3:// URL (default <task>.xlsx)")
	return cmd
}

func writeExport(ctx context.Context, a *app, out string, body io.Reader) error {
	if strings.HasPrefix(out, "s3://") {
		bucket, key, err := fetch.ParseS3URL(out)
		if err != nil {
			return err
		}
		dst, err := fetch.NewS3(ctx, bucket, "", fetch.Options{
			S3Region:   a.cfg.S3Region,
			S3Endpoint: a.cfg.S3Endpoint,
			Logger:     a.logger,
		})
		if err != nil {
			return err
		}
		_, err = dst.Put(ctx, key, body,
			"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		return err
	}

	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", out, err)
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", out, err)
	}
	return f.Close()
}

func newIngestCmd(a *app) *cobra.Command {
	var databaseURL string
	cmd := &cobra.Command{
		Use:   "ingest <task>... | all",
		Short: "Bulk-load task splits into Postgres",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if databaseURL == "" {
				databaseURL = a.cfg.DatabaseURL
			}
			if databaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required")
			}

			tasks, err := selectTasks(args)
			if err != nil {
				return err
			}
			src, err := a.source(ctx)
			if err != nil {
				return err
			}

			db, err := sink.OpenPostgres(ctx, databaseURL)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer db.Close()

			pg := sink.NewPostgres(db, uuid.New(), a.logger)
			if err := pg.EnsureSchema(ctx); err != nil {
				return err
			}
			loader := instrumented{next: pg, metrics: a.metrics}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run %s\n", pg.RunID())
			for _, task := range tasks {
				counts, err := sink.LoadSplits(ctx, src, task, discoeval.Splits, loader,
					a.cfg.ParallelSplits, a.readerOptions()...)
				if err != nil {
					return err
				}
				for _, split := range discoeval.Splits {
					fmt.Fprintf(out, "%s\t%s\t%d\n", task.Name, split, counts[split])
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&databaseURL, "database-url", "", "Postgres DSN (default $DATABASE_URL)")
	return cmd
}

// selectTasks resolves every name before any I/O; "all" selects the whole
// suite.
func selectTasks(names []string) ([]*discoeval.Task, error) {
	if len(names) == 1 && names[0] == "all" {
		return discoeval.Tasks(), nil
	}
	tasks := make([]*discoeval.Task, 0, len(names))
	for _, name := range names {
		t, err := discoeval.Lookup(name)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// joinRoot renders a split path under the configured root for display.
func joinRoot(root, p string) string {
	if strings.Contains(root, "://") {
		return strings.TrimRight(root, "/") + "/" + p
	}
	return filepath.Join(root, filepath.FromSlash(p))
}

// taskInfo is the JSON view of a descriptor.
type taskInfo struct {
	Name        string              `json:"name"`
	Family      string              `json:"family"`
	Description string              `json:"description"`
	Version     string              `json:"version"`
	Homepage    string              `json:"homepage"`
	Format      string              `json:"format"`
	LabelPolicy string              `json:"label_policy"`
	Features    []discoeval.Feature `json:"features"`
	Files       map[string]string   `json:"files"`
}

func describeTask(t *discoeval.Task) taskInfo {
	files := make(map[string]string, len(discoeval.Splits))
	for split, p := range t.Paths() {
		files[string(split)] = p
	}
	return taskInfo{
		Name:        t.Name,
		Family:      t.Family.String(),
		Description: t.Description,
		Version:     discoeval.Version,
		Homepage:    discoeval.Homepage,
		Format:      t.Format.String(),
		LabelPolicy: t.Labels.Policy().String(),
		Features:    t.Features(),
		Files:       files,
	}
}

func describeTasks(tasks []*discoeval.Task) []taskInfo {
	out := make([]taskInfo, len(tasks))
	for i, t := range tasks {
		out[i] = describeTask(t)
	}
	return out
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
