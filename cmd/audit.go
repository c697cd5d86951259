package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/viper"
	"github.com/sw33tLie/cwvcheck/internal/utils"
	"github.com/sw33tLie/cwvcheck/pkg/audit"
	"github.com/sw33tLie/cwvcheck/pkg/crux"
	"github.com/sw33tLie/cwvcheck/pkg/normalize"
	"github.com/sw33tLie/cwvcheck/pkg/origins"
	"github.com/sw33tLie/cwvcheck/pkg/report"
	"github.com/sw33tLie/cwvcheck/pkg/storage"
	"github.com/sw33tLie/cwvcheck/pkg/whttp"
)

type auditFlags struct {
	keepGoing bool
	useDB     bool
	dbPath    string
}

func runAudit(ctx context.Context, inputPath string, flags auditFlags) error {
	proxy := viper.GetString("proxy")

	cfg := crux.DefaultConfig(viper.GetString("crux.apikey"))
	cfg.Endpoint = viper.GetString("crux.endpoint")
	cfg.Timeout = viper.GetDuration("crux.timeout")
	cfg.Proxy = proxy
	if viper.GetBool("crux.fix_cls") {
		cfg.Keys = crux.FixedMetricKeys
	}

	fetcher, err := crux.NewClient(cfg)
	if err != nil {
		return fmt.Errorf("%w. Set crux.apikey in ~/.cwvcheck.yaml, CRUX_APIKEY or --key", err)
	}

	probeClient, err := whttp.NewClient(whttp.ClientOptions{
		Timeout: viper.GetDuration("probe.timeout"),
		Proxy:   proxy,
	})
	if err != nil {
		return err
	}

	// The report exists, header included, even if the input turns out to be unreadable
	rep, err := report.New(viper.GetString("output"))
	if err != nil {
		return err
	}

	list, err := origins.Load(inputPath)
	if err != nil {
		return err
	}

	opts := audit.Options{
		Delay:        viper.GetDuration("delay"),
		SnapshotPath: viper.GetString("snapshot"),
		KeepGoing:    flags.keepGoing,
	}

	if flags.useDB {
		dbPath := flags.dbPath
		if dbPath == "" {
			dbPath = storage.DefaultPath
		}
		db, err := storage.Open(dbPath)
		if err != nil {
			return fmt.Errorf("opening database %s: %w", dbPath, err)
		}
		defer db.Close()
		opts.Store = db
	}

	if len(list) == 0 {
		utils.Log.Warnf("No origins found in %s", inputPath)
		return nil
	}

	auditor := audit.New(normalize.New(probeClient), fetcher, rep, opts)
	summary, err := auditor.Run(ctx, list)
	printSummary(summary)
	if err != nil {
		return err
	}

	utils.Log.Infof("Core Web Vitals written to: %s", rep.Path())
	return nil
}

func printSummary(s audit.Summary) {
	if len(s.Items) == 0 {
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ORIGIN\tOUTCOME\tVERDICT\tNOTE\t")
	for _, item := range s.Items {
		origin := item.Origin.CanonicalURL
		if origin == "" {
			origin = item.Input
		}

		verdict := "-"
		if item.Row != nil {
			verdict = item.Row.Verdict
		}

		note := ""
		switch {
		case item.Err != nil:
			note = item.Err.Error()
		case item.Outcome == audit.OutcomeSkipped:
			note = fmt.Sprintf("CrUX status %d", item.StatusCode)
		case item.Degraded():
			note = "redirect check failed"
		case item.Origin.CrossSite:
			note = "redirected to another site"
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n", origin, item.Outcome, verdict, note)
	}

	fmt.Fprintln(w, " \t \t \t \t")
	fmt.Fprintf(w, "WRITTEN %d\tSKIPPED %d\tFAILED %d\tDEGRADED %d\t\n", s.Written, s.Skipped, s.Failed, s.Degraded)
	w.Flush()
}
