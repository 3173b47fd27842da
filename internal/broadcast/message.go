// Package broadcast sends one content item to every active subscriber.
package broadcast

import (
	"fmt"
	"strings"
	"time"
)

// FormatMessage renders "<header> <M>/<D>\n\n<body>". The date is taken in
// date's own location; callers convert to the schedule time zone first.
func FormatMessage(header string, date time.Time, body string) string {
	header = strings.TrimSpace(header)
	stamp := fmt.Sprintf("%d/%d", int(date.Month()), date.Day())
	if header == "" {
		return stamp + "\n\n" + body
	}
	return header + " " + stamp + "\n\n" + body
}
