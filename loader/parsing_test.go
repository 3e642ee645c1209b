package loader

import (
	"testing"
	"time"
)

func TestCleanDecimal_CurrencyPrefix(t *testing.T) {
	result, err := CleanDecimal("¥36.54")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.String() != "36.54" {
		t.Errorf("Expected '36.54', got '%s'", result.String())
	}
}

func TestCleanDecimal_PlainNumber(t *testing.T) {
	result, err := CleanDecimal("242.72")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.String() != "242.72" {
		t.Errorf("Expected '242.72', got '%s'", result.String())
	}
}

func TestCleanDecimal_Empty(t *testing.T) {
	result, err := CleanDecimal("/")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !result.IsZero() {
		t.Errorf("Expected zero, got '%s'", result.String())
	}
}

func TestParseTradeTime(t *testing.T) {
	ts := ParseTradeTime("2023-12-08 20:19:03")
	want := time.Date(2023, 12, 8, 20, 19, 3, 0, time.Local).Unix()
	if ts != want {
		t.Errorf("Expected %d, got %d", want, ts)
	}
}

func TestParseTradeTime_NonData(t *testing.T) {
	for _, text := range []string{"交易时间", "", "2023-12-08", "2023/12/08 20:19:03"} {
		if ts := ParseTradeTime(text); ts != 0 {
			t.Errorf("Expected 0 for %q, got %d", text, ts)
		}
	}
}

func TestRemark(t *testing.T) {
	got := Remark("alipay", "高德打车", "打车订单", "t1")
	want := "alipay--高德打车--打车订单--[TID:t1]"
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}
