package logs

import (
	"os"
	"sync"

	"go.uber.org/zap"
)

var IsDebugMode = os.Getenv("DEBUG") != "" && os.Getenv("DEBUG") != "0" && os.Getenv("DEBUG") != "false"

var (
	mu     sync.Mutex
	logger = zap.NewNop()
)

// Setup builds the process logger. Debug mode switches to a development
// console logger, everything else logs JSON at info level.
func Setup(debug bool) (*zap.Logger, error) {
	var (
		l   *zap.Logger
		err error
	)

	if debug {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}

	mu.Lock()
	logger = l
	mu.Unlock()

	return l, nil
}

// L returns the process logger.
func L() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()

	return logger
}

func ShowLogs(msg string, fields ...zap.Field) {
	if IsDebugMode {
		L().Debug(msg, fields...)
	}
}
