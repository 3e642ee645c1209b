package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/YangTianz/qianji-trans/pipeline"
	"github.com/YangTianz/qianji-trans/store"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the polling ingestion pipeline",
	Long: `Watches the working directory for exported bill files, ingests them into
the transaction store, round-trips unconfirmed transactions through the user
and dispatches confirmed ones to the ledger app.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := store.Open(viper.GetString("db_path"))
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.EnsureSchema(ctx); err != nil {
			return err
		}

		p, err := pipeline.New(pipelineConfig(), st)
		if err != nil {
			return err
		}

		color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "watching %s\n", viper.GetString("work_dir"))
		if err := p.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
