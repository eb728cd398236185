package pass

import "fmt"

// GenLabels returns count labels, prefixed with prefix (or, if empty,
// a generic "tmp" prefix), guaranteed absent from cfg's current label
// set. Passes use this to name new blocks introduced by a
// transformation (critical-edge splitting, loop rotation, and so on).
func GenLabels(cfg interface{ Labels() []string }, count int, prefix string) []string {
	if prefix == "" {
		prefix = "tmp"
	}
	existing := make(map[string]bool)
	for _, l := range cfg.Labels() {
		existing[l] = true
	}
	out := make([]string, 0, count)
	counter := 0
	for len(out) < count {
		label := fmt.Sprintf("%s.%d", prefix, counter)
		counter++
		if !existing[label] {
			out = append(out, label)
			existing[label] = true
		}
	}
	return out
}

// GenLabel is GenLabels(cfg, 1, prefix)[0].
func GenLabel(cfg interface{ Labels() []string }, prefix string) string {
	return GenLabels(cfg, 1, prefix)[0]
}
