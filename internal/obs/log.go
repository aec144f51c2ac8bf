package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"
)

var (
	lineOnce sync.Once
	lines    *log.Logger
)

func lineWriter() *log.Logger {
	lineOnce.Do(func() {
		lines = log.New(os.Stdout, "", 0)
	})
	return lines
}

// Emit writes one JSON object per line on stdout. A missing ts field is
// stamped here so call sites do not repeat the clock plumbing. Entries that
// fail to marshal degrade to a static error line rather than vanishing.
func Emit(entry map[string]any) {
	if len(entry) == 0 {
		return
	}
	if _, ok := entry["ts"]; !ok {
		entry["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	}
	data, err := json.Marshal(entry)
	if err != nil {
		lineWriter().Println(`{"level":"error","msg":"unserializable log entry"}`)
		return
	}
	lineWriter().Println(string(data))
}
