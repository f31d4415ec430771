package messaging

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LogMessenger пишет исходящие сообщения в лог. Для локального запуска без брокера.
type LogMessenger struct {
	log *zap.Logger
}

func NewLogMessenger(log *zap.Logger) *LogMessenger {
	return &LogMessenger{log: log}
}

func (m *LogMessenger) Send(_ context.Context, msg Outgoing) (string, error) {
	id := uuid.NewString()
	m.log.Info("outgoing message",
		zap.String("message_id", id),
		zap.String("user_id", msg.UserID),
		zap.String("replace", msg.ReplaceMessageID),
		zap.Int("buttons", countButtons(msg.Keyboard)),
		zap.String("text", msg.Text),
	)
	return id, nil
}

func countButtons(kb [][]Button) int {
	n := 0
	for _, row := range kb {
		n += len(row)
	}
	return n
}
