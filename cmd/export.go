package cmd

import (
	"context"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/YangTianz/qianji-trans/pipeline"
	"github.com/YangTianz/qianji-trans/store"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export every stored transaction to output.csv",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

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
		if err := p.DumpStore(ctx); err != nil {
			return err
		}
		color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "exported to %s/output.csv\n", viper.GetString("output_path"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
}
