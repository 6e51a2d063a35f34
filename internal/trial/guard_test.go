package trial

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestMemoryLedgerReserveOnce(t *testing.T) {
	ledger := NewMemoryLedger()
	ctx := context.Background()

	ok, err := ledger.Reserve(ctx, "+15550001111", "call_1")
	if err != nil || !ok {
		t.Fatalf("first reserve: ok=%v err=%v", ok, err)
	}
	ok, err = ledger.Reserve(ctx, "+15550001111", "call_2")
	if err != nil || ok {
		t.Fatalf("reserve for a second call must fail: ok=%v err=%v", ok, err)
	}
	ok, _ = ledger.Reserve(ctx, "+15550002222", "call_3")
	if !ok {
		t.Fatal("different identity must be admitted")
	}
}

func TestMemoryLedgerReserveIdempotentPerCall(t *testing.T) {
	ledger := NewMemoryLedger()
	ctx := context.Background()

	if ok, _ := ledger.Reserve(ctx, "+15550001111", "call_1"); !ok {
		t.Fatal("first reserve must win")
	}
	// A retried start event re-reserves with the same call id.
	if ok, _ := ledger.Reserve(ctx, "+15550001111", "call_1"); !ok {
		t.Fatal("the holding call id must stay admitted")
	}
	if ok, _ := ledger.Reserve(ctx, "+15550001111", "call_2"); ok {
		t.Fatal("a different call id must still be denied")
	}
}

func TestMemoryLedgerConcurrentReserve(t *testing.T) {
	ledger := NewMemoryLedger()
	ctx := context.Background()
	const attempts = 32

	var wg sync.WaitGroup
	granted := make(chan bool, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, _ := ledger.Reserve(ctx, "+15550001111", fmt.Sprintf("call_%d", i))
			granted <- ok
		}(i)
	}
	wg.Wait()
	close(granted)

	wins := 0
	for ok := range granted {
		if ok {
			wins++
		}
	}
	if wins != 1 {
		t.Errorf("exactly one concurrent caller may win, got %d", wins)
	}
}

func TestRedisLedgerReserve(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ledger := NewRedisLedger(rdb)
	ctx := context.Background()

	ok, err := ledger.Reserve(ctx, "+15550001111", "call_1")
	if err != nil || !ok {
		t.Fatalf("first reserve: ok=%v err=%v", ok, err)
	}
	ok, err = ledger.Reserve(ctx, "+15550001111", "call_2")
	if err != nil || ok {
		t.Fatalf("reserve for a second call must fail: ok=%v err=%v", ok, err)
	}
	ok, err = ledger.Reserve(ctx, "+15550001111", "call_1")
	if err != nil || !ok {
		t.Fatalf("holding call id must stay admitted: ok=%v err=%v", ok, err)
	}
}

func TestGuardAdmitEnforced(t *testing.T) {
	guard := NewGuard(NewMemoryLedger(), true, time.Minute, nil)
	ctx := context.Background()

	if err := guard.Admit(ctx, "+15550001111", "call_1"); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if err := guard.Admit(ctx, "+15550001111", "call_1"); err != nil {
		t.Errorf("retried admit for the same call: %v", err)
	}
	if err := guard.Admit(ctx, "+15550001111", "call_2"); err != ErrAlreadyUsed {
		t.Errorf("second call: got %v, want ErrAlreadyUsed", err)
	}
}

func TestGuardAdmitDisabled(t *testing.T) {
	guard := NewGuard(NewMemoryLedger(), false, time.Minute, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := guard.Admit(ctx, "+15550001111", fmt.Sprintf("call_%d", i)); err != nil {
			t.Fatalf("call %d with enforcement off: %v", i, err)
		}
	}
}

func TestGuardExpiry(t *testing.T) {
	started := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	now := started
	guard := NewGuard(NewMemoryLedger(), true, 3*time.Minute, func() time.Time { return now })

	if guard.Expired(started) {
		t.Error("fresh call must not be expired")
	}
	now = started.Add(2*time.Minute + 59*time.Second)
	if guard.Expired(started) {
		t.Error("2:59 is inside the budget")
	}
	now = started.Add(3 * time.Minute)
	if !guard.Expired(started) {
		t.Error("3:00 exhausts the budget")
	}
	if guard.Elapsed(started) != 3*time.Minute {
		t.Errorf("Elapsed: got %s", guard.Elapsed(started))
	}
}
