package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/sw33tLie/cwvcheck/pkg/storage"
)

var dbPath string

// dbCmd represents the db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Interact with the cwvcheck results database",
}

// shellCmd represents the shell command
var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Start an interactive shell to the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := existingDBPath()
		if err != nil {
			return err
		}

		// Check if sqlite3 is in PATH
		sqlitePath, err := exec.LookPath("sqlite3")
		if err != nil {
			return fmt.Errorf("sqlite3 command not found in your PATH. Please install it to use the db shell")
		}

		// Print schema first
		fmt.Println("--> Database schema:")
		schemaCmd := exec.Command(sqlitePath, path, ".schema")
		schemaCmd.Stdout = os.Stdout
		schemaCmd.Stderr = os.Stderr
		if err := schemaCmd.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: couldn't retrieve schema: %v\n", err)
		}
		fmt.Println("\n--> Starting interactive shell... (Ctrl+D to exit)")

		c := exec.Command(sqlitePath, path)
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr

		return c.Run()
	},
}

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Prints per-origin statistics about the stored audits.",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := existingDBPath()
		if err != nil {
			return err
		}

		db, err := storage.Open(path)
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats(context.Background())
		if err != nil {
			return err
		}

		if len(stats) == 0 {
			fmt.Println("No data in the database to generate stats.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ORIGIN\tRUNS\tPASSED\tFAILED\tLAST DATE\tLAST VERDICT\t")

		var totalRuns, totalPassed, totalFailed int
		for _, s := range stats {
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\t%s\t\n", s.Origin, s.Runs, s.PassedCount, s.FailedCount, s.LastDate, s.LastVerdict)
			totalRuns += s.Runs
			totalPassed += s.PassedCount
			totalFailed += s.FailedCount
		}

		fmt.Fprintln(w, " \t \t \t \t \t \t")
		fmt.Fprintf(w, "TOTAL\t%d\t%d\t%d\t\t\t\n", totalRuns, totalPassed, totalFailed)

		w.Flush()

		return nil
	},
}

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Print stored audit rows",
	RunE: func(cmd *cobra.Command, args []string) error {
		origin, _ := cmd.Flags().GetString("origin")
		since, _ := cmd.Flags().GetString("since")
		until, _ := cmd.Flags().GetString("until")
		limit, _ := cmd.Flags().GetInt("limit")

		path, err := existingDBPath()
		if err != nil {
			return err
		}

		db, err := storage.Open(path)
		if err != nil {
			return err
		}
		defer db.Close()

		results, err := db.ListResults(context.Background(), storage.ListOptions{
			OriginFilter: origin,
			Since:        since,
			Until:        until,
			Limit:        limit,
		})
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "DATE\tORIGIN\tVERDICT\tLCP75P\tLCP%\tFID75P\tFID%\tCLS75P\tCLS%\t")
		for _, r := range results {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%d\t%s\t%d\t\n", r.Date, r.Origin, r.Verdict, r.LCPP75, r.LCPGoodPct, r.FIDP75, r.FIDGoodPct, r.CLSP75, r.CLSGoodPct)
		}
		return w.Flush()
	},
}

func existingDBPath() (string, error) {
	path := dbPath
	if path == "" {
		path = storage.DefaultPath
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("database file not found: %s", path)
		}
		return "", err
	}
	return path, nil
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(shellCmd)
	dbCmd.AddCommand(statsCmd)
	dbCmd.AddCommand(listCmd)
	dbCmd.PersistentFlags().StringVar(&dbPath, "dbpath", storage.DefaultPath, "Path to SQLite DB file")

	listCmd.Flags().String("origin", "", "Only show origins containing this string")
	listCmd.Flags().String("since", "", "Only show audits on or after this date (YYYY-MM-DD)")
	listCmd.Flags().String("until", "", "Only show audits on or before this date (YYYY-MM-DD)")
	listCmd.Flags().Int("limit", 0, "Maximum number of rows (0 for all)")
}
