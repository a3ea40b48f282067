package notify

import (
	"context"

	"monositi/internal/logging"

	"github.com/rs/zerolog"
)

// LogSender writes codes to the log instead of delivering them. It is the
// default when no SMS gateway is configured.
type LogSender struct {
	logger *zerolog.Logger
}

func NewLogSender(logger *zerolog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, phone, code string) error {
	s.logger.Info().Str("phone", logging.MaskPhone(phone)).Msg("One-time code issued")
	s.logger.Debug().Str("phone", phone).Str("code", code).Msg("One-time code (log delivery)")
	return nil
}
