package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/sw33tLie/cwvcheck/internal/utils"
	"github.com/sw33tLie/cwvcheck/pkg/audit"
	"github.com/sw33tLie/cwvcheck/pkg/crux"
	"github.com/sw33tLie/cwvcheck/pkg/normalize"
	"github.com/sw33tLie/cwvcheck/pkg/report"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

var cfgFile string

const (
	LOGO = `	                          _               _
	  _____      ____   _____| |__   ___  ___| | __
	 / __\ \ /\ / /\ \ / / __| '_ \ / _ \/ __| |/ /
	| (__ \ V  V /  \ V / (__| | | |  __/ (__|   <
	 \___| \_/\_/    \_/ \___|_| |_|\___|\___|_|\_\

`
)

// rootCmd audits every origin of the input file when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "cwvcheck <input-file>",
	Short: "Batch Core Web Vitals checks against the Chrome UX Report API.",
	Long: LOGO + `cwvcheck reads origins from a semicolon-delimited file (first field of each row),
follows their redirects, queries the Chrome UX Report API for each of them and appends
LCP, FID and CLS results to a CSV report.`,
	Args: cobra.ExactArgs(1),
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		keepGoing, _ := cmd.Flags().GetBool("keep-going")
		useDB, _ := cmd.Flags().GetBool("db")
		dbPath, _ := cmd.Flags().GetString("dbpath")

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		return runAudit(ctx, args[0], auditFlags{
			keepGoing: keepGoing,
			useDB:     useDB,
			dbPath:    dbPath,
		})
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.cwvcheck.yaml)")

	// Global flags
	rootCmd.PersistentFlags().StringP("proxy", "", "", "HTTP Proxy (Useful for debugging. Example: http://127.0.0.1:8080)")
	rootCmd.PersistentFlags().StringP("loglevel", "l", "info", "Set log level. Available: debug, info, warn, error, fatal")
	viper.BindPFlag("proxy", rootCmd.PersistentFlags().Lookup("proxy"))

	rootCmd.Flags().StringP("key", "k", "", "Chrome UX Report API key (config: crux.apikey, env: CRUX_APIKEY)")
	viper.BindPFlag("crux.apikey", rootCmd.Flags().Lookup("key"))

	rootCmd.Flags().StringP("output", "o", report.DefaultPath, "CSV report to append results to")
	viper.BindPFlag("output", rootCmd.Flags().Lookup("output"))

	rootCmd.Flags().String("snapshot", report.DefaultSnapshotPath, "File receiving the last raw CrUX response")
	viper.BindPFlag("snapshot", rootCmd.Flags().Lookup("snapshot"))

	rootCmd.Flags().Duration("delay", audit.DefaultDelay, "Pause after each origin")
	viper.BindPFlag("delay", rootCmd.Flags().Lookup("delay"))

	rootCmd.Flags().Duration("probe-timeout", normalize.DefaultProbeTimeout, "Timeout of the redirect probe")
	viper.BindPFlag("probe.timeout", rootCmd.Flags().Lookup("probe-timeout"))

	rootCmd.Flags().Duration("api-timeout", 0, "Timeout of each CrUX API call (0 waits forever)")
	viper.BindPFlag("crux.timeout", rootCmd.Flags().Lookup("api-timeout"))

	rootCmd.Flags().Bool("fix-cls", false, "Read CLS from cumulative_layout_shift instead of first_input_delay")
	viper.BindPFlag("crux.fix_cls", rootCmd.Flags().Lookup("fix-cls"))

	rootCmd.Flags().Bool("keep-going", false, "Log unparsable CrUX responses and continue with the next origin")
	rootCmd.Flags().Bool("db", false, "Also save results to the database")
	rootCmd.Flags().String("dbpath", "", "Path to SQLite DB file (default: cwvcheck.sqlite in CWD)")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".cwvcheck")
		viper.SetConfigType("yaml")
	}

	// crux.apikey can be set as CRUX_APIKEY
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; create it with defaults.
			home, _ := homedir.Dir()
			configPath := home + "/.cwvcheck.yaml"
			if err := viper.SafeWriteConfigAs(configPath); err != nil {
				fmt.Printf("Error creating config file: %s", err)
			}
		}
	}

	// Set default empty values for all keys
	viper.SetDefault("crux.apikey", "")
	viper.SetDefault("crux.endpoint", crux.CRUX_QUERY_RECORD_ENDPOINT)

	// Init log library
	levelString, _ := rootCmd.PersistentFlags().GetString("loglevel")
	utils.SetLogLevel(levelString)
}
