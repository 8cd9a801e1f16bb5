package notification

import (
	"context"
	"log/slog"

	"github.com/lncurl/lncurl/internal/activity"
)

// Message describes a notification payload.
type Message struct {
	Kind   string
	Wallet string
	Body   string
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the structured logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification", "kind", message.Kind, "wallet", message.Wallet, "body", message.Body)
	return nil
}

// Forward returns a bus listener relaying deaths and unlocked achievements to
// n. Births and charge summaries are high volume and stay on the feed only.
func Forward(n Notifier) activity.Listener {
	return func(ctx context.Context, e activity.Event) error {
		switch e.Type {
		case activity.TypeWalletDied, activity.TypeAchievementUnlocked:
		default:
			return nil
		}
		return n.Send(ctx, Message{Kind: string(e.Type), Wallet: e.WalletName, Body: e.Message})
	}
}
