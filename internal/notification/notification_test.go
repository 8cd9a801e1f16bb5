package notification

import (
	"context"
	"testing"

	"github.com/lncurl/lncurl/internal/activity"
)

type recordingNotifier struct {
	sent []Message
}

func (r *recordingNotifier) Send(_ context.Context, m Message) error {
	r.sent = append(r.sent, m)
	return nil
}

func TestForwardRelaysDeathsAndAchievements(t *testing.T) {
	rec := &recordingNotifier{}
	listener := Forward(rec)
	ctx := context.Background()

	events := []activity.Event{
		{Type: activity.TypeWalletCreated, WalletName: "alpha"},
		{Type: activity.TypeChargeCollected, AmountSats: 2},
		{Type: activity.TypeWalletDied, WalletName: "beta", Message: "beta was reaped"},
		{Type: activity.TypeAchievementUnlocked, Message: "Century Club"},
	}
	for _, e := range events {
		if err := listener(ctx, e); err != nil {
			t.Fatalf("listener: %v", err)
		}
	}

	if len(rec.sent) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(rec.sent))
	}
	if rec.sent[0].Kind != "wallet_died" || rec.sent[0].Wallet != "beta" {
		t.Fatalf("unexpected first notification %+v", rec.sent[0])
	}
	if rec.sent[1].Body != "Century Club" {
		t.Fatalf("unexpected second notification %+v", rec.sent[1])
	}
}

func TestLoggerNotifierNilSafe(t *testing.T) {
	var n *LoggerNotifier
	if err := n.Send(context.Background(), Message{Kind: "x"}); err != nil {
		t.Fatalf("nil notifier should not fail: %v", err)
	}
}
