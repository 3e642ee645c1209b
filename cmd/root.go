package cmd

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/YangTianz/qianji-trans/pipeline"
)

// Embedded default configuration, used when no config file is found.
const defaultConfigYAML = `
work_dir: .
output_path: output
db_path: qianji.db
account_rules: account_rules.json
classify_rules: category_rules.json
intervals:
  ingest: 3s
  unconfirmed: 1s
  confirmed: 3s
  dispatch: 4s`

var (
	cfgFile string
	verbose bool
	rootCmd = &cobra.Command{
		Use:   "qianji-trans",
		Short: "Ingests payment-provider bill exports into the Qianji ledger",
		Long: `qianji-trans watches a working directory for exported Alipay and WeChat
bill files, normalizes every line into a categorized transaction, reconciles
refunds and canceled orders, and hands confirmed records to the Qianji app.`,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}
)

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initLogging)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default is ./.qianji-trans.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
}

func initLogging() {
	if !verbose {
		log.SetOutput(io.Discard)
	} else {
		log.SetFlags(log.Ltime | log.Lmsgprefix)
		log.SetPrefix("INFO: ")
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(".")
		viper.AddConfigPath(home)
		viper.SetConfigName(".qianji-trans")
		viper.SetConfigType("yaml")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			if err := viper.ReadConfig(bytes.NewBufferString(defaultConfigYAML)); err != nil {
				fmt.Printf("Error loading embedded configuration: %v\n", err)
				os.Exit(1)
			}
		} else {
			fmt.Printf("Error reading config file: %v\n", err)
			os.Exit(1)
		}
	}
}

func pipelineConfig() pipeline.Config {
	return pipeline.Config{
		WorkDir:       viper.GetString("work_dir"),
		AccountRules:  viper.GetString("account_rules"),
		ClassifyRules: viper.GetString("classify_rules"),
		OutputPath:    viper.GetString("output_path"),
		Intervals: pipeline.Intervals{
			Ingest:      durationOr("intervals.ingest", 3*time.Second),
			Unconfirmed: durationOr("intervals.unconfirmed", time.Second),
			Confirmed:   durationOr("intervals.confirmed", 3*time.Second),
			Dispatch:    durationOr("intervals.dispatch", 4*time.Second),
		},
	}
}

func durationOr(key string, fallback time.Duration) time.Duration {
	if d := viper.GetDuration(key); d > 0 {
		return d
	}
	return fallback
}
