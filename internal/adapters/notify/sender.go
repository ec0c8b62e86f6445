// Package notify renders and delivers the emails that follow a cutoff.
package notify

import (
	"context"

	"github.com/okian/cohort/pkg/logger"
)

// Message is a rendered email.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Sender delivers one message.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// LogSender writes messages to the log instead of sending them.
type LogSender struct {
	logger logger.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender() *LogSender {
	return &LogSender{logger: logger.Named("notify")}
}

// Send implements Sender.
func (s *LogSender) Send(ctx context.Context, m Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.logger.Info(ctx, "notification delivered to log",
		logger.String("to", m.To),
		logger.String("subject", m.Subject),
		logger.Int("bytes", len(m.HTML)),
	)
	return nil
}
