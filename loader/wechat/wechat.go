// Package wechat parses WeChat Pay wallet exports. Refunds arrive as
// annotations on the original record rather than separate correlatable
// lines, so every correction happens inline and no batch reconciliation
// state is needed.
package wechat

import (
	"log"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"

	"github.com/YangTianz/qianji-trans/loader"
	"github.com/YangTianz/qianji-trans/qianji"
	"github.com/YangTianz/qianji-trans/rules"
)

// CSV column indices of the WeChat Pay export.
const (
	colTradeTime     = 0
	colCategory      = 1
	colCounterparty  = 2
	colMerchandise   = 3
	colFlow          = 4
	colAmount        = 5
	colAccountText   = 6
	colStatus        = 7
	colTransactionID = 8
)

const (
	flowIncome  = "收入"
	flowExpense = "支出"

	statusFullRefund = "已全额退款"
	statusReturned   = "对方已退还"
	refundMark       = "已退款"
	withdrawArrived  = "提现已到账"

	// floatAccount is WeChat's own balance, used as the fixed origin of
	// withdrawals and the fallback account for unresolved income.
	floatAccount = "微信"
)

var (
	filePattern = regexp.MustCompile(`微信支付账单\((\d{8}-\d{8})\)\.csv`)
	// The status column spells the refunded amount with a fullwidth yen
	// sign, unlike the halfwidth one in the amount column.
	refundAmountPattern = regexp.MustCompile(`￥(\d+(\.\d{1,2})?)`)
)

// Provider implements loader.Provider for WeChat Pay exports.
type Provider struct{}

func New() *Provider { return &Provider{} }

func (p *Provider) Name() string                  { return "wechat" }
func (p *Provider) FilePattern() *regexp.Regexp   { return filePattern }
func (p *Provider) Encoding() encoding.Encoding   { return unicode.UTF8 }
func (p *Provider) MinFields() int                { return 9 }
func (p *Provider) ParseTradeTime(s string) int64 { return loader.ParseTradeTime(s) }

func (p *Provider) ParseType(fields []string) qianji.Type {
	switch fields[colFlow] {
	case flowIncome:
		return qianji.Income
	case flowExpense:
		return qianji.Expense
	default:
		// "/" and anything else the export invents.
		return qianji.Transfer
	}
}

func (p *Provider) ParseCost(fields []string) (decimal.Decimal, error) {
	// The amount carries a currency prefix, e.g. "¥36.54".
	return loader.CleanDecimal(strings.TrimSpace(fields[colAmount]))
}

func (p *Provider) AccountFields(fields []string) map[string]rules.Value {
	return map[string]rules.Value{
		"account_text":  rules.String(fields[colAccountText]),
		"status_wechat": rules.String(fields[colStatus]),
	}
}

func (p *Provider) ClassifyFields(fields []string) map[string]rules.Value {
	return map[string]rules.Value{
		"type_":        rules.String(fields[colCategory]),
		"counterparty": rules.String(fields[colCounterparty]),
		"merchandise":  rules.String(fields[colMerchandise]),
	}
}

// BuildRecord finishes a WeChat line, handling the refund and withdrawal
// special cases inline.
func (p *Provider) BuildRecord(rec loader.Record) (*qianji.Transaction, error) {
	status := rec.Fields[colStatus]
	accFrom := rec.AccountFrom
	accTo := ""
	cost := rec.Cost

	// A fully refunded or returned transaction cancels itself out.
	if status == statusFullRefund || status == statusReturned {
		return nil, nil
	}
	// Partial refunds show up twice: the income-typed echo is dropped here
	// and the original expense line subtracts the amount below.
	if rec.Type == qianji.Income && strings.Contains(status, refundMark) {
		return nil, nil
	}

	if rec.Type == qianji.Transfer && strings.Contains(status, withdrawArrived) {
		accTo = accFrom
		accFrom = floatAccount
	}

	if rec.Type == qianji.Income && accFrom == "" {
		log.Printf("Warning: unknown income destination, recorded against %s, raw data: %v",
			floatAccount, rec.Fields)
		accFrom = floatAccount
	}

	if rec.Type == qianji.Expense && strings.Contains(status, refundMark) {
		m := refundAmountPattern.FindStringSubmatch(status)
		if m != nil {
			refund, err := decimal.NewFromString(m[1])
			if err == nil {
				cost = cost.Sub(refund)
			}
		} else {
			log.Printf("Error: could not read refund amount from status, raw data: %v", rec.Fields)
		}
	}

	tid := strings.TrimSpace(rec.Fields[colTransactionID])
	merchandise := strings.Trim(rec.Fields[colMerchandise], `"`)
	remark := loader.Remark(p.Name(), rec.Fields[colCounterparty], merchandise, tid)
	if rec.Classify != "" {
		remark += loader.AutoClassifyMark
	}

	return qianji.New(rec.Time, rec.Classify, rec.Type, cost,
		accFrom, accTo, qianji.FlagEmpty, remark, nil, tid)
}

// PostProcess is a no-op: WeChat resolves every refund inline.
func (p *Provider) PostProcess(records []*qianji.Transaction) []*qianji.Transaction {
	return records
}
