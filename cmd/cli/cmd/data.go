package cmd

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"landed-cost/adapters/archive"
	"landed-cost/adapters/hcl"
	"landed-cost/adapters/sqlite"
	"landed-cost/internal/config"
)

var dataCmd = &cobra.Command{
	Use:   "data",
	Short: "Manage period tables and stored runs in the sqlite database",
}

var dataImportCmd = &cobra.Command{
	Use:   "import <model-path>",
	Short: "Copy period tables from definition files into the database",
	Long: `Read unit costs, labor, volumes and exchange rates from .hcl files and
upsert them into the sqlite database in one transaction. Entities, routes,
BOM and rules stay in the files.`,
	Args: cobra.ExactArgs(1),
	RunE: runDataImport,
}

var dataRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List stored calculation runs, newest first",
	Args:  cobra.NoArgs,
	RunE:  runDataRuns,
}

var dataCompareCmd = &cobra.Command{
	Use:   "compare <old-run> <new-run>",
	Short: "Show records whose totals changed between two stored runs",
	Long: `Compare two stored runs. Either id may be "latest", meaning the newest
run (with --label, the newest run carrying that label).`,
	Args: cobra.ExactArgs(2),
	RunE: runDataCompare,
}

var dataDeleteCmd = &cobra.Command{
	Use:   "delete <run-id>",
	Short: "Delete a stored run",
	Args:  cobra.ExactArgs(1),
	RunE:  runDataDelete,
}

var dataArchiveCmd = &cobra.Command{
	Use:   "archive <run-id>",
	Short: "Copy a stored run to the S3 archive bucket",
	Long: `Upload the result of a stored run to the bucket configured under
archive. The id may be "latest" (with --label, the newest run carrying it).`,
	Args: cobra.ExactArgs(1),
	RunE: runDataArchive,
}

var dataArchivedCmd = &cobra.Command{
	Use:   "archived",
	Short: "List runs in the S3 archive bucket",
	Args:  cobra.NoArgs,
	RunE:  runDataArchived,
}

var (
	dataDryRun  bool
	dataConfirm bool
	dataLabel   string
	dataLimit   int
	dataSince   time.Duration
)

func init() {
	rootCmd.AddCommand(dataCmd)
	dataCmd.AddCommand(dataImportCmd, dataRunsCmd, dataCompareCmd, dataDeleteCmd, dataArchiveCmd, dataArchivedCmd)

	dataCmd.PersistentFlags().StringVar(&inputs.sqlitePath, "sqlite", "", "sqlite database (overrides config)")

	dataImportCmd.Flags().BoolVar(&dataDryRun, "dry-run", false, "parse and count rows, no database writes")
	dataImportCmd.Flags().BoolVar(&dataConfirm, "confirm", false, "skip the overwrite confirmation prompt")

	dataRunsCmd.Flags().StringVar(&dataLabel, "label", "", "only runs with this label")
	dataRunsCmd.Flags().IntVar(&dataLimit, "limit", 20, "maximum runs to list (0 for all)")
	dataRunsCmd.Flags().DurationVar(&dataSince, "since", 0, "only runs newer than this (e.g. 168h)")

	dataCompareCmd.Flags().StringVar(&dataLabel, "label", "", "label used to resolve \"latest\"")
	dataArchiveCmd.Flags().StringVar(&dataLabel, "label", "", "label used to resolve \"latest\"")
}

func openDB(ctx context.Context) (*sqlite.DB, error) {
	path := sqlitePath(config.Get())
	if path == "" {
		return nil, fmt.Errorf("no sqlite database; use --sqlite or set data.sqlite_path")
	}
	return sqlite.Open(ctx, path)
}

func runDataImport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	w := cmd.OutOrStdout()

	m, err := hcl.NewLoader().Load(args[0])
	if err != nil {
		return err
	}
	c, l, v := m.Costs.Len()
	fmt.Fprintf(w, "Read %d costs, %d labor, %d volumes, %d rates from %s\n", c, l, v, m.Rates.Len(), args[0])

	if dataDryRun {
		fmt.Fprintln(w, "Dry run: no database writes.")
		return nil
	}

	if !dataConfirm {
		fmt.Fprintln(w, "")
		fmt.Fprintln(w, "╔══════════════════════════════════════════════════════════════╗")
		fmt.Fprintln(w, "║                       ⚠️  OVERWRITE ⚠️                         ║")
		fmt.Fprintln(w, "╚══════════════════════════════════════════════════════════════╝")
		fmt.Fprintln(w, "")
		fmt.Fprintln(w, "Existing rows with the same keys will be replaced.")
		fmt.Fprint(w, "Type 'yes' to confirm: ")

		reader := bufio.NewReader(cmd.InOrStdin())
		input, _ := reader.ReadString('\n')
		if strings.TrimSpace(strings.ToLower(input)) != "yes" {
			fmt.Fprintln(w, "Aborted.")
			return nil
		}
	}

	db, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	stats, err := db.Import(ctx, m.Costs, m.Rates)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "✓ Imported %d rows into %s\n", stats.Total(), db.Path())
	return nil
}

func runDataRuns(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	db, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	filter := sqlite.ListFilter{Label: dataLabel, Limit: dataLimit}
	if dataSince > 0 {
		filter.Since = time.Now().Add(-dataSince)
	}
	runs, err := db.ListRuns(ctx, filter)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(w, "No stored runs.")
		return nil
	}
	fmt.Fprintf(w, "%-36s  %-20s  %-16s  %7s  %8s\n", "RUN", "CREATED", "LABEL", "RECORDS", "WARNINGS")
	for _, r := range runs {
		fmt.Fprintf(w, "%-36s  %-20s  %-16s  %7d  %8d\n",
			r.ID, r.CreatedAt.Local().Format("2006-01-02 15:04:05"), r.Label, r.Records, r.Warnings)
	}
	return nil
}

func runDataCompare(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	db, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	ids := make([]string, 2)
	for i, id := range args {
		run, err := resolveRun(ctx, db, id)
		if err != nil {
			return err
		}
		ids[i] = run.ID
	}

	cmp, err := db.CompareRuns(ctx, ids[0], ids[1])
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if len(cmp.Changes) == 0 {
		fmt.Fprintln(w, "No changes between runs.")
		return nil
	}
	fmt.Fprintf(w, "%-44s %14s %14s %14s %9s\n", "RECORD", "OLD", "NEW", "DELTA", "%")
	for _, ch := range cmp.Changes {
		fmt.Fprintf(w, "%-44s %14s %14s %14s %9s\n",
			ch.Key.String(), ch.Old.StringFixed(2), ch.New.StringFixed(2), ch.Delta.StringFixed(2), ch.Percent.StringFixed(2))
	}
	return nil
}

func runDataDelete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	db, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.DeleteRun(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s\n", args[0])
	return nil
}

// resolveRun looks up a run by id, or the newest one for "latest"
func resolveRun(ctx context.Context, db *sqlite.DB, id string) (*sqlite.Run, error) {
	if id == "latest" {
		return db.LatestRun(ctx, dataLabel)
	}
	return db.GetRun(ctx, id)
}

func openArchive(ctx context.Context) (*archive.S3, error) {
	ac := config.Get().Archive
	return archive.New(ctx, archive.Config{
		Bucket:    ac.Bucket,
		Region:    ac.Region,
		Endpoint:  ac.Endpoint,
		Prefix:    ac.Prefix,
		PathStyle: ac.PathStyle,
	})
}

func runDataArchive(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	store, err := openArchive(ctx)
	if err != nil {
		return err
	}
	db, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	run, err := resolveRun(ctx, db, args[0])
	if err != nil {
		return err
	}
	key, err := store.PutRun(ctx, run)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Archived run %s to %s\n", run.ID, key)
	return nil
}

func runDataArchived(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	store, err := openArchive(ctx)
	if err != nil {
		return err
	}
	objects, err := store.List(ctx)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if len(objects) == 0 {
		fmt.Fprintln(w, "Archive is empty.")
		return nil
	}
	for _, o := range objects {
		fmt.Fprintf(w, "%-80s %10d  %s\n", o.Key, o.Size, o.LastModified.Local().Format("2006-01-02 15:04"))
	}
	return nil
}
