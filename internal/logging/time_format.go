package logging

import "time"

// consoleTimeLayout is the human-oriented timestamp used by the console
// handler. JSON output keeps RFC 3339 via the default slog encoding.
const consoleTimeLayout = "2006-01-02 15:04:05"

func formatLogTime(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.In(time.Local).Format(consoleTimeLayout)
}
