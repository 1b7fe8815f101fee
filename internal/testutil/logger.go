package testutil

import "github.com/customeros/mailsync/internal/logger"

func NewTestLogger() logger.Logger {
	l := logger.NewAppLogger(&logger.Config{LogLevel: "error", Encoder: "console"})
	l.InitLogger()
	return l
}
