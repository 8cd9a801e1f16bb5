package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestInMemoryLedger_TransferDebitsAccount(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()

	acct, err := l.CreateAccount(ctx, "lncurl_feral_goblin")
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	SeedBalance(l, acct.Ref, 10_000)

	if err := l.Transfer(ctx, acct.Ref, 1_500); err != nil {
		t.Fatalf("transfer failed: %v", err)
	}

	balance, err := l.Balance(ctx, acct.Ref)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 8_500 {
		t.Fatalf("expected balance 8500, got %d", balance)
	}
	if got := Collected(l); got != 1_500 {
		t.Fatalf("expected 1500 collected, got %d", got)
	}
}

func TestInMemoryLedger_TransferRejectsOverdraft(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	acct, _ := l.CreateAccount(ctx, "lncurl_soggy_potato")
	SeedBalance(l, acct.Ref, 1)

	err := l.Transfer(ctx, acct.Ref, 5)
	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("expected remote error, got %v", err)
	}
	if balance, _ := l.Balance(ctx, acct.Ref); balance != 1 {
		t.Fatalf("balance changed after rejected transfer: %d", balance)
	}
}

func TestInMemoryLedger_NameConflict(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	if _, err := l.CreateAccount(ctx, "lncurl_epic_kraken"); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := l.CreateAccount(ctx, "lncurl_epic_kraken"); !errors.Is(err, ErrNameConflict) {
		t.Fatalf("expected name conflict, got %v", err)
	}
}

func TestInMemoryLedger_DeleteAccount(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	acct, _ := l.CreateAccount(ctx, "lncurl_pale_mist")

	if err := l.DeleteAccount(ctx, acct.Ref); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if Exists(l, acct.Ref) {
		t.Fatalf("account still present after delete")
	}
	if _, err := l.Balance(ctx, acct.Ref); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestInMemoryLedger_FailureInjection(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	acct, _ := l.CreateAccount(ctx, "lncurl_hexed_toad")
	SeedBalance(l, acct.Ref, 100)

	boom := errors.New("hub offline")
	FailBalance(l, acct.Ref, boom)
	if _, err := l.Balance(ctx, acct.Ref); !errors.Is(err, boom) {
		t.Fatalf("expected injected balance error, got %v", err)
	}
	FailBalance(l, acct.Ref, nil)

	FailTransfer(l, acct.Ref, boom)
	if err := l.Transfer(ctx, acct.Ref, 1); !errors.Is(err, boom) {
		t.Fatalf("expected injected transfer error, got %v", err)
	}
	if balance, _ := l.Balance(ctx, acct.Ref); balance != 100 {
		t.Fatalf("failed transfer moved funds: %d", balance)
	}
}

func TestInMemoryLedger_ConcurrentTransfers(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	acct, _ := l.CreateAccount(ctx, "lncurl_wild_storm")
	SeedBalance(l, acct.Ref, 100_000)

	const workers = 10
	const amount = int64(500)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := l.Transfer(ctx, acct.Ref, amount); err != nil {
				t.Errorf("transfer %d failed: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	balance, _ := l.Balance(ctx, acct.Ref)
	if balance+Collected(l) != 100_000 {
		t.Fatalf("funds not conserved: balance=%d collected=%d", balance, Collected(l))
	}
}
