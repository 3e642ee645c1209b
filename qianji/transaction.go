// Package qianji holds the normalized transaction record and its
// serialization contracts (storage row, export CSV row, qianji:// deep link).
package qianji

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ExportHeader is the literal header row of the export CSV. The Chinese
// column names are part of the compatibility contract with the ledger app.
const ExportHeader = "时间,分类,类型,金额,账户1,账户2,备注,账单标记,账单图片"

// BookName is the ledger book every deep link targets.
const BookName = "日常账本"

const (
	exportTimeLayout = "2006/01/02 15:04:05"
	apiTimeLayout    = "2006-01-02 15:04:05"
)

// Type is the transaction type label as the ledger app spells it.
type Type string

const (
	Expense       Type = "支出"
	Income        Type = "收入"
	Transfer      Type = "转账"
	Repayment     Type = "还款"
	Reimbursement Type = "报销"
)

// TypeFromLabel maps a label back to a Type, defaulting to Expense for
// anything unknown.
func TypeFromLabel(label string) Type {
	switch Type(label) {
	case Expense, Income, Transfer, Repayment, Reimbursement:
		return Type(label)
	}
	return Expense
}

// Flag marks how a transaction counts toward income/expense and budget.
type Flag string

const (
	FlagEmpty      Flag = ""
	FlagNotCounted Flag = "不计收支"
	FlagNoBudget   Flag = "不计预算"
	FlagNeither    Flag = "不计收支&预算"
)

// FlagFromLabel maps a label back to a Flag, defaulting to FlagEmpty.
func FlagFromLabel(label string) Flag {
	switch Flag(label) {
	case FlagNotCounted, FlagNoBudget, FlagNeither:
		return Flag(label)
	}
	return FlagEmpty
}

// Status is the lifecycle stage of a stored transaction. It is assigned by
// the pipeline and the store, never by the parsing core.
type Status int

const (
	StatusRaw        Status = 0
	StatusClassified Status = 1
	StatusWritten    Status = 2
)

var tidPattern = regexp.MustCompile(`\[TID:(.*?)\]`)

// ExtractTID pulls the [TID:...] token out of a remark string.
func ExtractTID(remark string) (string, error) {
	m := tidPattern.FindStringSubmatch(remark)
	if m == nil {
		return "", fmt.Errorf("no [TID:...] token in remark %q", remark)
	}
	return m[1], nil
}

// Transaction is one normalized ledger record.
//
// Construct through New so the id and 2-decimal cost invariants hold.
type Transaction struct {
	ID          string            `json:"id"`
	Time        int64             `json:"time"`
	Classify    string            `json:"classify"`
	Type        Type              `json:"type"`
	Cost        decimal.Decimal   `json:"cost"`
	AccountFrom string            `json:"account_from"`
	AccountTo   string            `json:"account_to"`
	Flag        Flag              `json:"flag"`
	Remark      string            `json:"remark"`
	Extra       map[string]string `json:"extra,omitempty"`
	Status      Status            `json:"status"`
}

// New builds a Transaction. When tid is empty the id is derived from the
// [TID:...] token embedded in the remark; a remark without the token is a
// hard error, never a silent default.
func New(ts int64, classify string, typ Type, cost decimal.Decimal, accFrom, accTo string, flag Flag, remark string, extra map[string]string, tid string) (*Transaction, error) {
	if tid == "" {
		var err error
		tid, err = ExtractTID(remark)
		if err != nil {
			return nil, err
		}
	}
	if extra == nil {
		extra = map[string]string{}
	}
	return &Transaction{
		ID:          tid,
		Time:        ts,
		Classify:    classify,
		Type:        typ,
		Cost:        cost.Round(2),
		AccountFrom: accFrom,
		AccountTo:   accTo,
		Flag:        flag,
		Remark:      remark,
		Extra:       extra,
	}, nil
}

// Refund subtracts amount from the cost and re-rounds. It never increases
// the cost; driving it to exactly zero makes the record invalid.
func (t *Transaction) Refund(amount decimal.Decimal) {
	t.Cost = t.Cost.Sub(amount).Round(2)
}

// IsValid reports whether the record may appear in a final output set.
func (t *Transaction) IsValid() bool {
	return !t.Cost.IsZero()
}

// DumpToDB renders the canonical quoted storage row:
// "id", time, "classify", "type", cost, "acc_from", "acc_to", "remark", "flag".
func (t *Transaction) DumpToDB() string {
	return fmt.Sprintf(`"%s", %d, "%s", "%s", %s, "%s", "%s", "%s", "%s"`,
		t.ID, t.Time, t.Classify, t.Type, t.Cost.String(),
		t.AccountFrom, t.AccountTo, t.Remark, t.Flag)
}

// Dump renders the export CSV row matching ExportHeader. The picture column
// is always empty.
func (t *Transaction) Dump() string {
	return strings.Join([]string{
		time.Unix(t.Time, 0).Format(exportTimeLayout),
		t.Classify,
		string(t.Type),
		t.Cost.Round(2).String(),
		t.AccountFrom,
		t.AccountTo,
		t.Remark,
		string(t.Flag),
		"",
	}, ",")
}

// DumpToAPI renders the qianji:// deep link that records this transaction in
// the ledger app. Types beyond expense/income/transfer have no deep-link
// representation and yield an empty string.
func (t *Transaction) DumpToAPI() string {
	var typ int
	switch t.Type {
	case Expense:
		typ = 0
	case Income:
		typ = 1
	case Transfer:
		typ = 2
	default:
		return ""
	}
	text := fmt.Sprintf(
		"qianji://publicapi/addbill?&type=%d&money=%s&time=%s&remark=%s&catename=%s&accountname=%s&bookname=%s",
		typ,
		t.Cost.Round(2).String(),
		time.Unix(t.Time, 0).Format(apiTimeLayout),
		t.Remark,
		t.Classify,
		t.AccountFrom,
		BookName,
	)
	if t.Type == Transfer {
		text += "&accountname2=" + t.AccountTo
	}
	return text
}

// DumpToADBCommand wraps the deep link in the adb invocation that launches
// the ledger app on a connected device.
func (t *Transaction) DumpToADBCommand() string {
	return fmt.Sprintf(`adb shell am start -a android.intent.action.VIEW """%s"""`, t.DumpToAPI())
}

// LoadFromFileContent parses export-format CSV content (as written next to
// ExportHeader) back into transactions keyed by id. Rows whose first column
// does not parse as a timestamp are skipped as non-data, matching the loader
// policy for headers.
func LoadFromFileContent(content string) (map[string]*Transaction, error) {
	ret := map[string]*Transaction{}
	lines := strings.Split(content, "\n")
	if len(lines) < 2 {
		return ret, nil
	}
	for _, line := range lines[1:] {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) < 8 {
			continue
		}
		ts, err := time.ParseInLocation(exportTimeLayout, fields[0], time.Local)
		if err != nil {
			continue
		}
		cost, err := decimal.NewFromString(fields[3])
		if err != nil {
			return nil, fmt.Errorf("bad amount %q: %w", fields[3], err)
		}
		t, err := New(ts.Unix(), fields[1], TypeFromLabel(fields[2]), cost,
			fields[4], fields[5], FlagFromLabel(fields[7]), fields[6], nil, "")
		if err != nil {
			return nil, err
		}
		ret[t.ID] = t
	}
	return ret, nil
}
