package numerator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
)

// Mock objects
type mockRow struct {
	val int64
	err error
}

func (m *mockRow) Scan(dest ...any) error {
	if m.err != nil {
		return m.err
	}
	if len(dest) > 0 {
		if ptr, ok := dest[0].(*int64); ok {
			*ptr = m.val
		}
	}
	return nil
}

type mockQuerier struct {
	mu           sync.Mutex
	currentValue int64 // Simulates DB sequence value
	calls        int
}

func (m *mockQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	// Strict passes (key); cached passes (key, increment).
	var increment int64 = 1
	if len(args) == 2 {
		if val, ok := args[1].(int64); ok {
			increment = val
		}
	}

	m.currentValue += increment
	return &mockRow{val: m.currentValue}
}

func TestGetNextNumber_Strict(t *testing.T) {
	q := &mockQuerier{}
	svc := New(q)
	ctx := context.Background()
	cfg := DefaultConfig("TRF")
	year := time.Now().Format("2006")

	num, err := svc.GetNextNumber(ctx, cfg, nil, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if num != "TRF-"+year+"-00001" {
		t.Errorf("expected TRF-%s-00001, got %s", year, num)
	}

	num, err = svc.GetNextNumber(ctx, cfg, nil, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if num != "TRF-"+year+"-00002" {
		t.Errorf("expected TRF-%s-00002, got %s", year, num)
	}

	// Strict hits the database on every call.
	if q.calls != 2 {
		t.Errorf("expected 2 DB calls, got %d", q.calls)
	}
}

func TestGetNextNumber_Cached(t *testing.T) {
	q := &mockQuerier{}
	svc := New(q)
	ctx := context.Background()
	cfg := DefaultConfig("SALE")
	year := time.Now().Format("2006")

	opts := &Options{
		Strategy:  StrategyCached,
		RangeSize: 10,
	}

	// First call reserves 1..10 (DB value becomes 10) and returns 1.
	num, err := svc.GetNextNumber(ctx, cfg, opts, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if num != "SALE-"+year+"-00001" {
		t.Errorf("expected SALE-%s-00001, got %s", year, num)
	}
	if q.currentValue != 10 {
		t.Errorf("expected DB value to be 10, got %d", q.currentValue)
	}

	// Second call is served from memory, DB untouched.
	num, err = svc.GetNextNumber(ctx, cfg, opts, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if num != "SALE-"+year+"-00002" {
		t.Errorf("expected SALE-%s-00002, got %s", year, num)
	}
	if q.currentValue != 10 {
		t.Errorf("expected DB value to stay 10, got %d", q.currentValue)
	}

	// Exhaust the range; the next call reserves 11..20.
	for i := 0; i < 8; i++ {
		_, _ = svc.GetNextNumber(ctx, cfg, opts, time.Now())
	}

	num, err = svc.GetNextNumber(ctx, cfg, opts, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if num != "SALE-"+year+"-00011" {
		t.Errorf("expected SALE-%s-00011, got %s", year, num)
	}
	if q.currentValue != 20 {
		t.Errorf("expected DB value to be 20, got %d", q.currentValue)
	}
}

func TestParseNumber(t *testing.T) {
	cases := map[string]int64{
		"TRF-2026-00042": 42,
		"RET-00007":      7,
		"garbage":        -1,
	}
	for in, want := range cases {
		if got := ParseNumber(in); got != want {
			t.Errorf("ParseNumber(%q) = %d, want %d", in, got, want)
		}
	}
}
