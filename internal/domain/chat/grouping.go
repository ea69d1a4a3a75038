package chat

import "time"

// GroupWindow is the maximum gap between consecutive messages of one sender
// that still renders as a single visual group.
const GroupWindow = 120 * time.Second

// GroupedWithPrevious reports whether curr continues the visual group started
// by prev: same sender, within GroupWindow, and no calendar-day boundary in
// between. Pure computation over the ordered sequence; nothing is stored.
func GroupedWithPrevious(prev, curr Message) bool {
	if prev.SenderID != curr.SenderID {
		return false
	}
	if DateChanged(prev.CreatedAt, curr.CreatedAt) {
		return false
	}
	gap := curr.CreatedAt.Sub(prev.CreatedAt)
	return gap >= 0 && gap <= GroupWindow
}

// DateChanged reports whether a date separator belongs between two timestamps.
func DateChanged(prev, curr time.Time) bool {
	py, pm, pd := prev.Local().Date()
	cy, cm, cd := curr.Local().Date()
	return py != cy || pm != cm || pd != cd
}

// GroupMessages partitions an ordered sequence into visual groups.
func GroupMessages(seq []Message) [][]Message {
	if len(seq) == 0 {
		return nil
	}
	groups := make([][]Message, 0, len(seq))
	current := []Message{seq[0]}
	for _, m := range seq[1:] {
		if GroupedWithPrevious(current[len(current)-1], m) {
			current = append(current, m)
			continue
		}
		groups = append(groups, current)
		current = []Message{m}
	}
	return append(groups, current)
}
