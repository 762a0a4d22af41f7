package router

import (
	"strings"
)

// helpText lists the commands visible to the caller, one "/cmd - description" per line.
func (r *Router) helpText(owner bool) string {
	r.mu.RLock()
	cmds := append([]*Command(nil), r.order...)
	r.mu.RUnlock()

	lines := make([]string, 0, len(cmds))
	for _, c := range cmds {
		if c.Access == AccessOwnerOnly && !owner {
			continue
		}
		line := "/" + c.Name
		if d := strings.TrimSpace(c.Description); d != "" {
			line += " - " + d
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
