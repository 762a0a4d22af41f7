package schedule

import (
	"fmt"
	"strings"
)

// TimelineChunk is the maximum number of rows per rendered message.
const TimelineChunk = 70

// FormatTimeline merges consecutive slots with the same action into
// "HH:MM - HH:MM - action" rows. The last row is open-ended: "HH:MM - ... - action".
func FormatTimeline(slots []Slot) []string {
	if len(slots) == 0 {
		return nil
	}
	rows := make([]string, 0, len(slots))
	cur := slots[0]
	for _, s := range slots[1:] {
		if s.Action == cur.Action {
			cur.End = s.End
			continue
		}
		rows = append(rows, fmt.Sprintf("%s - %s - %s", cur.Start.Format("15:04"), cur.End.Format("15:04"), cur.Action))
		cur = s
	}
	rows = append(rows, fmt.Sprintf("%s - ... - %s", cur.Start.Format("15:04"), cur.Action))
	return rows
}

// ChunkLines joins lines into messages of at most n lines each.
func ChunkLines(lines []string, n int) []string {
	if n <= 0 {
		n = TimelineChunk
	}
	out := make([]string, 0, (len(lines)+n-1)/n)
	for i := 0; i < len(lines); i += n {
		end := min(i+n, len(lines))
		out = append(out, strings.Join(lines[i:end], "\n"))
	}
	return out
}
