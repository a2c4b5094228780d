package market

import (
	"testing"
	"time"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestAppendDeduplicatesByDateAndSorts(t *testing.T) {
	c := NewPriceCache()
	c.Load("tao", []DailyPrice{{Date: day(2024, 1, 2), Price: 2}})
	c.Append("tao", []DailyPrice{
		{Date: day(2024, 1, 1), Price: 1},
		{Date: day(2024, 1, 2), Price: 999}, // duplicate date, should not replace
	})
	got, ok := c.GetLatestPrice("tao")
	if !ok || got != 2 {
		t.Fatalf("GetLatestPrice = %v, %v, want 2, true", got, ok)
	}
}

func TestGetPriceAtReturnsNearestWithin48Hours(t *testing.T) {
	c := NewPriceCache()
	c.Load("tao", []DailyPrice{
		{Date: day(2024, 1, 1), Price: 10},
		{Date: day(2024, 1, 5), Price: 50},
	})
	price, ok := c.GetPriceAt("tao", day(2024, 1, 2))
	if !ok || price != 10 {
		t.Fatalf("GetPriceAt = %v, %v, want 10, true", price, ok)
	}
}

func TestGetPriceAtMissesBeyond48Hours(t *testing.T) {
	c := NewPriceCache()
	c.Load("tao", []DailyPrice{{Date: day(2024, 1, 1), Price: 10}})
	if _, ok := c.GetPriceAt("tao", day(2024, 1, 10)); ok {
		t.Fatal("expected miss beyond 48h window")
	}
}
