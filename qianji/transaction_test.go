package qianji

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}

func TestExtractTID(t *testing.T) {
	tid, err := ExtractTID("alipay--高德打车--打车订单--[TID:2023120822001489491457440137]")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if tid != "2023120822001489491457440137" {
		t.Errorf("Expected tid, got %q", tid)
	}
}

func TestExtractTID_Missing(t *testing.T) {
	_, err := ExtractTID("no token here")
	if err == nil {
		t.Fatal("Expected error for remark without TID token")
	}
}

func TestNew_DerivesIDFromRemark(t *testing.T) {
	tr, err := New(1700000000, "打车", Expense, mustDecimal(t, "16.60"),
		"招行信用卡(0638)", "", FlagEmpty, "alipay--高德打车--订单--[TID:abc123]", nil, "")
	assert.NoError(t, err)
	assert.Equal(t, "abc123", tr.ID)
}

func TestNew_MissingIDIsFatal(t *testing.T) {
	_, err := New(1700000000, "", Expense, mustDecimal(t, "1.00"),
		"", "", FlagEmpty, "remark without token", nil, "")
	assert.Error(t, err)
}

func TestNew_RoundsCost(t *testing.T) {
	tr, err := New(1700000000, "", Expense, mustDecimal(t, "16.605"),
		"", "", FlagEmpty, "", nil, "t1")
	assert.NoError(t, err)
	assert.True(t, tr.Cost.Equal(mustDecimal(t, "16.61")), "got %s", tr.Cost)
}

func TestRefund(t *testing.T) {
	tr, err := New(1700000000, "", Expense, mustDecimal(t, "93.40"),
		"", "", FlagEmpty, "", nil, "t1")
	assert.NoError(t, err)

	tr.Refund(mustDecimal(t, "9.10"))
	assert.True(t, tr.Cost.Equal(mustDecimal(t, "84.30")), "got %s", tr.Cost)
	assert.True(t, tr.IsValid())

	tr.Refund(mustDecimal(t, "84.30"))
	assert.True(t, tr.Cost.IsZero())
	assert.False(t, tr.IsValid(), "zero-cost transaction must be invalid")
}

func TestRefund_BelowZeroStaysStructurallyValid(t *testing.T) {
	tr, err := New(1700000000, "", Expense, mustDecimal(t, "10.00"),
		"", "", FlagEmpty, "", nil, "t1")
	assert.NoError(t, err)

	tr.Refund(mustDecimal(t, "15.00"))
	assert.True(t, tr.Cost.IsNegative())
	assert.True(t, tr.IsValid(), "only exact zero is filtered")
}

func TestDumpToDB(t *testing.T) {
	tr, err := New(1700000000, "打车", Expense, mustDecimal(t, "16.60"),
		"招行信用卡(0638)", "", FlagEmpty, "remark[TID:t1]", nil, "t1")
	assert.NoError(t, err)
	assert.Equal(t,
		`"t1", 1700000000, "打车", "支出", 16.60, "招行信用卡(0638)", "", "remark[TID:t1]", ""`,
		tr.DumpToDB())
}

func TestDumpToAPI(t *testing.T) {
	ts := time.Date(2023, 4, 6, 12, 20, 44, 0, time.Local).Unix()

	expense, err := New(ts, "咖啡", Expense, mustDecimal(t, "9.10"),
		"微信", "", FlagEmpty, "r[TID:t1]", nil, "t1")
	assert.NoError(t, err)
	assert.Equal(t,
		"qianji://publicapi/addbill?&type=0&money=9.10&time=2023-04-06 12:20:44&remark=r[TID:t1]&catename=咖啡&accountname=微信&bookname=日常账本",
		expense.DumpToAPI())

	transfer, err := New(ts, "", Transfer, mustDecimal(t, "242.72"),
		"微信", "招行工资卡(0702)", FlagEmpty, "r[TID:t2]", nil, "t2")
	assert.NoError(t, err)
	assert.True(t, strings.HasSuffix(transfer.DumpToAPI(), "&accountname2=招行工资卡(0702)"))
	assert.Contains(t, transfer.DumpToAPI(), "&type=2&")

	repayment, err := New(ts, "", Repayment, mustDecimal(t, "100"),
		"", "", FlagEmpty, "r[TID:t3]", nil, "t3")
	assert.NoError(t, err)
	assert.Equal(t, "", repayment.DumpToAPI(), "unsupported type yields no command")
}

func TestDumpRoundTrip(t *testing.T) {
	ts := time.Date(2023, 4, 6, 12, 20, 44, 0, time.Local).Unix()
	original, err := New(ts, "转账", Transfer, mustDecimal(t, "242.72"),
		"微信", "招行工资卡(0702)", FlagNotCounted, "wechat--招商银行(2508)--/--[TID:t42]", nil, "")
	assert.NoError(t, err)

	content := ExportHeader + "\n" + original.Dump()
	loaded, err := LoadFromFileContent(content)
	assert.NoError(t, err)
	assert.Len(t, loaded, 1)

	got := loaded["t42"]
	if assert.NotNil(t, got) {
		assert.Equal(t, original.ID, got.ID)
		assert.Equal(t, original.Time, got.Time)
		assert.Equal(t, original.Classify, got.Classify)
		assert.Equal(t, original.Type, got.Type)
		assert.True(t, original.Cost.Equal(got.Cost))
		assert.Equal(t, original.AccountFrom, got.AccountFrom)
		assert.Equal(t, original.AccountTo, got.AccountTo)
		assert.Equal(t, original.Remark, got.Remark)
		assert.Equal(t, original.Flag, got.Flag)
	}
}

func TestLoadFromFileContent_SkipsNonDataRows(t *testing.T) {
	content := ExportHeader + "\nnot a data row\n\n"
	loaded, err := LoadFromFileContent(content)
	assert.NoError(t, err)
	assert.Empty(t, loaded)
}
