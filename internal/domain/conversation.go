package domain

import "time"

// Turn is a single completed exchange in the conversation log. The log is
// append-only; only the most recent few turns are fed back as context.
type Turn struct {
	Input    string
	Response string
	At       time.Time
}

// RecentTurns returns up to n of the newest turns, oldest first.
func RecentTurns(turns []Turn, n int) []Turn {
	if n <= 0 || len(turns) == 0 {
		return nil
	}
	if len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	return turns
}
