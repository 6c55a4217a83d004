package mqtt

import "strings"

// MatchFilter reports whether topic matches an MQTT-style filter.
// "+" matches exactly one level, a trailing "#" matches the remainder.
// Filters and topics are case sensitive.
func MatchFilter(filter, topic string) bool {
	if filter == "" || topic == "" {
		return false
	}
	if filter == topic {
		return true
	}

	fl := strings.Split(filter, "/")
	tl := strings.Split(topic, "/")

	for i, part := range fl {
		if part == "#" {
			// "#" is only valid as the last filter level.
			return i == len(fl)-1
		}
		if i >= len(tl) {
			return false
		}
		if part == "+" {
			continue
		}
		if part != tl[i] {
			return false
		}
	}
	return len(fl) == len(tl)
}
