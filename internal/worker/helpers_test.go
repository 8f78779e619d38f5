package worker

import (
	"io"

	"github.com/shaysadin/wedding-rsvp-sub004/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Output: io.Discard})
}
