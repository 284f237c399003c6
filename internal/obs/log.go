package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"
)

var (
	loggerOnce sync.Once
	logger     *log.Logger
)

// Logger returns the shared logger. Tests swap its output to capture lines.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.New(os.Stdout, "", 0)
	})
	return logger
}

// LogRequest emits one JSON line. The ts and level keys are stamped when the
// caller leaves them out; level defaults to info.
func LogRequest(fields map[string]any) {
	if _, ok := fields["ts"]; !ok {
		fields["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if _, ok := fields["level"]; !ok {
		fields["level"] = "info"
	}
	data, err := json.Marshal(fields)
	if err != nil {
		Logger().Printf(`{"level":"error","msg":"log marshal failed","error":%q}`, err.Error())
		return
	}
	Logger().Println(string(data))
}
