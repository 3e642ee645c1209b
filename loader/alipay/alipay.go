// Package alipay parses bulk-export Alipay bill files and reconciles
// refund/cancellation events against their originating charges within a
// batch.
package alipay

import (
	"log"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/simplifiedchinese"

	"github.com/YangTianz/qianji-trans/loader"
	"github.com/YangTianz/qianji-trans/qianji"
	"github.com/YangTianz/qianji-trans/rules"
)

// CSV column indices of the Alipay bulk export.
const (
	colTradeTime           = 0
	colCategory            = 1
	colCounterparty        = 2
	colCounterpartyAccount = 3
	colMerchandise         = 4
	colFlow                = 5
	colAmount              = 6
	colAccountText         = 7
	colStatus              = 8
	colTransactionID       = 9
	colMerchantOrderNo     = 10
)

// Literal column values the reconciliation logic keys on.
const (
	flowIncome     = "收入"
	flowNotCounted = "不计收支"
	statusClosed   = "交易关闭"
	statusRefundOK = "退款成功"
)

var filePattern = regexp.MustCompile(`alipay_record_\d{8}_\d{6}\.csv`)

// Provider implements loader.Provider for Alipay exports. It owns the
// batch-scoped reconciliation state; refunds and closed orders are keyed by
// merchant order number, which is assumed never to be reused across
// unrelated charges within a batch.
type Provider struct {
	closedOrders  map[string]*qianji.Transaction
	refundAmounts map[string]decimal.Decimal
	refundLines   map[string][]string
}

func New() *Provider {
	p := &Provider{}
	p.Reset()
	return p
}

// Reset clears all batch-scoped reconciliation state.
func (p *Provider) Reset() {
	p.closedOrders = map[string]*qianji.Transaction{}
	p.refundAmounts = map[string]decimal.Decimal{}
	p.refundLines = map[string][]string{}
}

func (p *Provider) Name() string                  { return "alipay" }
func (p *Provider) FilePattern() *regexp.Regexp   { return filePattern }
func (p *Provider) Encoding() encoding.Encoding   { return simplifiedchinese.GBK }
func (p *Provider) MinFields() int                { return 11 }
func (p *Provider) ParseTradeTime(s string) int64 { return loader.ParseTradeTime(s) }

func (p *Provider) ParseType(fields []string) qianji.Type {
	switch fields[colFlow] {
	case flowIncome:
		return qianji.Income
	case flowNotCounted:
		return qianji.Transfer
	default:
		return qianji.Expense
	}
}

func (p *Provider) ParseCost(fields []string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.TrimSpace(fields[colAmount]))
}

func (p *Provider) AccountFields(fields []string) map[string]rules.Value {
	return map[string]rules.Value{
		"account_text": rules.String(fields[colAccountText]),
	}
}

func (p *Provider) ClassifyFields(fields []string) map[string]rules.Value {
	return map[string]rules.Value{
		"type_":        rules.String(fields[colCategory]),
		"counterparty": rules.String(fields[colCounterparty]),
		"merchandise":  rules.String(fields[colMerchandise]),
	}
}

// BuildRecord finishes an Alipay line. Closed orders are remembered for the
// cancellation pass in addition to being returned; "not counted" refund
// lines only accumulate reconciliation state and return nothing.
func (p *Provider) BuildRecord(rec loader.Record) (*qianji.Transaction, error) {
	flow := rec.Fields[colFlow]
	status := rec.Fields[colStatus]
	orderNo := strings.TrimSpace(rec.Fields[colMerchantOrderNo])
	tid := strings.TrimSpace(rec.Fields[colTransactionID])

	remark := loader.Remark(p.Name(), rec.Fields[colCounterparty], rec.Fields[colMerchandise], tid)
	if rec.Classify != "" {
		remark += loader.AutoClassifyMark
	}

	transaction, err := qianji.New(rec.Time, rec.Classify, rec.Type, rec.Cost,
		rec.AccountFrom, "", qianji.FlagEmpty, remark,
		map[string]string{"merchant_order_number": orderNo}, tid)
	if err != nil {
		return nil, err
	}

	if status == statusClosed {
		p.closedOrders[orderNo] = transaction
	}

	// "Not counted" lines are typically balance-fund yields and refunds.
	if flow == flowNotCounted {
		if status == statusRefundOK {
			p.refundAmounts[orderNo] = p.refundAmounts[orderNo].Add(rec.Cost)
			p.refundLines[orderNo] = rec.Fields
		}
		return nil, nil
	}

	return transaction, nil
}

// PostProcess runs the two-pass refund/cancellation correction over a fully
// parsed batch and unconditionally clears the reconciliation state.
//
// Pass 1 applies accumulated refunds to the transactions they originate
// from. Pass 2 drops refunds whose originating order was closed before it
// produced a chargeable transaction. Whatever remains is an orphaned refund
// and is logged for manual review without blocking the batch.
func (p *Provider) PostProcess(records []*qianji.Transaction) []*qianji.Transaction {
	for _, transaction := range records {
		orderNo := transaction.Extra["merchant_order_number"]
		amount, ok := p.refundAmounts[orderNo]
		if !ok {
			continue
		}
		transaction.Refund(amount)
		if transaction.Cost.IsNegative() {
			log.Printf("Warning: refund exceeds original cost for order %s (cost now %s)",
				orderNo, transaction.Cost.String())
		}
		delete(p.refundAmounts, orderNo)
	}

	for orderNo := range p.refundAmounts {
		if _, ok := p.closedOrders[orderNo]; ok {
			delete(p.refundAmounts, orderNo)
		}
	}

	for orderNo := range p.refundAmounts {
		log.Printf("Warning: unmatched refund was not recorded, raw data: %v", p.refundLines[orderNo])
	}

	p.Reset()
	return records
}
