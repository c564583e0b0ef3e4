package voting

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Notifier delivers one-time codes to voters over an out-of-band channel
// (SMS or the organization's mobile app push). The message text is fixed;
// handlers never see the plaintext code.
type Notifier interface {
	SendOTP(ctx context.Context, memberID uuid.UUID, code string) error
}

// LogNotifier writes codes to the log instead of a delivery channel. Local
// development only.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendOTP(ctx context.Context, memberID uuid.UUID, code string) error {
	n.logger.InfoContext(ctx, "voting code issued (dev delivery)",
		"member_id", memberID,
		"message", "Your voting code is "+code+". It is valid for 5 minutes.",
	)
	return nil
}
