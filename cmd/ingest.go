package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/YangTianz/qianji-trans/loader"
	"github.com/YangTianz/qianji-trans/loader/alipay"
	"github.com/YangTianz/qianji-trans/loader/wechat"
	"github.com/YangTianz/qianji-trans/rules"
)

var ingestPath string

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Parse a single exported bill file and print the transactions as JSON",
	Long: `Parses one exported bill file through the full rule-matching and
reconciliation pipeline without touching the store. Useful for debugging
account and category rules. The provider is picked by file name.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if ingestPath == "" {
			return fmt.Errorf("--file/-f is required")
		}

		accountRules, err := rules.LoadFile(viper.GetString("account_rules"))
		if err != nil {
			return err
		}
		classifyRules, err := rules.LoadFile(viper.GetString("classify_rules"))
		if err != nil {
			return err
		}

		raw, err := os.ReadFile(ingestPath)
		if err != nil {
			return err
		}

		for _, provider := range []loader.Provider{wechat.New(), alipay.New()} {
			if !provider.FilePattern().MatchString(ingestPath) {
				continue
			}
			decoded, err := provider.Encoding().NewDecoder().Bytes(raw)
			if err != nil {
				return fmt.Errorf("decode %s: %w", ingestPath, err)
			}
			transactions := loader.New(provider, accountRules, classifyRules).ParseFileContent(string(decoded))
			out, err := json.MarshalIndent(transactions, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		}
		return fmt.Errorf("no provider matches file name %s", ingestPath)
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().StringVarP(&ingestPath, "file", "f", "", "Path to an exported bill file (required)")
	ingestCmd.MarkFlagRequired("file")
}
