// Package loader defines the per-provider line parsing contract and the
// batch driver that turns one exported bill file into normalized
// transactions.
package loader

import (
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding"

	"github.com/YangTianz/qianji-trans/qianji"
	"github.com/YangTianz/qianji-trans/rules"
)

// AutoClassifyMark is appended to the remark when the category was assigned
// by rule rather than left blank.
const AutoClassifyMark = "[auto]"

// Record carries the common per-line fields into a provider's record
// builder.
type Record struct {
	Type        qianji.Type
	Time        int64
	Cost        decimal.Decimal
	AccountFrom string
	Classify    string
	Fields      []string
}

// Provider is the per-provider half of the line parsing contract. A
// provider instance owns any batch-scoped reconciliation state; one
// instance must not be shared across concurrently parsed batches.
type Provider interface {
	// Name is the provider label used in remarks and rule field bags.
	Name() string
	// FilePattern matches exported file names belonging to this provider.
	FilePattern() *regexp.Regexp
	// Encoding is the character encoding of exported files.
	Encoding() encoding.Encoding
	// MinFields is the minimum column count of a data row; shorter rows
	// are skipped as non-data.
	MinFields() int
	// ParseTradeTime returns the Unix timestamp of the row, or 0 when the
	// first column does not look like a trade time (headers, preamble).
	ParseTradeTime(text string) int64
	ParseType(fields []string) qianji.Type
	ParseCost(fields []string) (decimal.Decimal, error)
	// AccountFields and ClassifyFields build the rule-engine field bags
	// for account and category resolution.
	AccountFields(fields []string) map[string]rules.Value
	ClassifyFields(fields []string) map[string]rules.Value
	// BuildRecord finishes a line. It may return a transaction, or nil
	// when the line is consumed only for its side effect (refund events,
	// suppressed rows).
	BuildRecord(rec Record) (*qianji.Transaction, error)
	// PostProcess runs once per batch after every line was parsed, and
	// must clear any batch-scoped state before returning.
	PostProcess(records []*qianji.Transaction) []*qianji.Transaction
}

// Loader drives a Provider over whole file contents, resolving accounts and
// categories through the rule engine.
type Loader struct {
	provider      Provider
	accountRules  []rules.Rule
	classifyRules []rules.Rule
}

func New(p Provider, accountRules, classifyRules []rules.Rule) *Loader {
	return &Loader{
		provider:      p,
		accountRules:  accountRules,
		classifyRules: classifyRules,
	}
}

func (l *Loader) Provider() Provider { return l.provider }

// ParseFileContent splits content into lines, parses each one, runs the
// provider's batch post-processing and returns only valid transactions.
// All malformed-input conditions are recovered locally: a record that
// cannot be built is logged and dropped, never aborting the batch.
func (l *Loader) ParseFileContent(content string) []*qianji.Transaction {
	var records []*qianji.Transaction
	for _, line := range strings.Split(content, "\n") {
		record, err := l.parseLine(line)
		if err != nil {
			log.Printf("Warning: dropping record: %v (line: %s)", err, strings.TrimSpace(line))
			continue
		}
		if record != nil {
			records = append(records, record)
		}
	}
	records = l.provider.PostProcess(records)

	valid := records[:0]
	for _, record := range records {
		if record.IsValid() {
			valid = append(valid, record)
		}
	}
	return valid
}

func (l *Loader) parseLine(line string) (*qianji.Transaction, error) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) < l.provider.MinFields() {
		return nil, nil
	}
	tradeTime := l.provider.ParseTradeTime(fields[0])
	if tradeTime == 0 {
		return nil, nil
	}
	typ := l.provider.ParseType(fields)
	cost, err := l.provider.ParseCost(fields)
	if err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	return l.provider.BuildRecord(Record{
		Type:        typ,
		Time:        tradeTime,
		Cost:        cost,
		AccountFrom: l.resolveAccount(fields, typ),
		Classify:    l.resolveClassify(fields, typ),
		Fields:      fields,
	})
}

func (l *Loader) resolveAccount(fields []string, typ qianji.Type) string {
	bag := l.provider.AccountFields(fields)
	l.addCommonFields(bag, typ)
	return rules.Check(bag, l.accountRules)
}

func (l *Loader) resolveClassify(fields []string, typ qianji.Type) string {
	bag := l.provider.ClassifyFields(fields)
	l.addCommonFields(bag, typ)
	return rules.Check(bag, l.classifyRules)
}

func (l *Loader) addCommonFields(bag map[string]rules.Value, typ qianji.Type) {
	bag["loader"] = rules.String(l.provider.Name())
	bag["is_income"] = rules.Bool(typ == qianji.Income)
	bag["is_expense"] = rules.Bool(typ == qianji.Expense)
}

// Remark renders the fixed remark format shared by all providers.
func Remark(provider, counterparty, merchandise, transactionID string) string {
	return fmt.Sprintf("%s--%s--%s--[TID:%s]", provider, counterparty, merchandise, transactionID)
}
