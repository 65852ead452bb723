package logger

import (
	"os"
	"time"
)

// LogAndMeasureExecutionTime logs the start of functionName and returns a
// function that, deferred, logs its end together with the elapsed time.
func LogAndMeasureExecutionTime(log *Logger, functionName string) (onEnd func()) {
	start := time.Now()
	log.Debugf("%s start", functionName)
	return func() {
		log.Debugf("%s end. Took: %s", functionName, time.Since(start))
	}
}

// stdoutWriter io.WriteClosers os.Stdout without closing it when the backend
// shuts down.
type stdoutWriter struct{}

func (stdoutWriter) Write(p []byte) (int, error) {
	return os.Stdout.Write(p)
}

func (stdoutWriter) Close() error {
	return nil
}
