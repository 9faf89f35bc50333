// Package conversation holds the question/answer history of a review session.
package conversation

import "time"

// Turn is one completed exchange.
type Turn struct {
	Question  string
	Answer    string
	Timestamp time.Time
}

// Transcript is an ordered, append-only list of turns.
// Append never modifies the receiver, so a Transcript can be shared
// with the stages of one turn while the next one is built.
type Transcript struct {
	turns []Turn
}

// Append returns a new transcript with turn added at the end.
func (t Transcript) Append(turn Turn) Transcript {
	turns := make([]Turn, len(t.turns), len(t.turns)+1)
	copy(turns, t.turns)
	return Transcript{turns: append(turns, turn)}
}

// Turns returns a copy of the turns in order.
func (t Transcript) Turns() []Turn {
	out := make([]Turn, len(t.turns))
	copy(out, t.turns)
	return out
}

// Len returns the number of turns.
func (t Transcript) Len() int {
	return len(t.turns)
}

// Empty reports whether no turn has been recorded.
func (t Transcript) Empty() bool {
	return len(t.turns) == 0
}

// Last returns the most recent turn.
func (t Transcript) Last() (Turn, bool) {
	if len(t.turns) == 0 {
		return Turn{}, false
	}
	return t.turns[len(t.turns)-1], true
}
