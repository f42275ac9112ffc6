package matchid

import (
	"math/rand"

	"streamer-quiz-server/matcherrors"
)

// Alphabet is the 32-symbol set match ids are drawn from. Visually
// ambiguous characters (O, 0, I, 1) are excluded so codes survive being
// read out loud on stream or typed from a phone screen.
const Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Length is the fixed match id length.
const Length = 6

// maxAttempts bounds collision re-rolls before giving up.
const maxAttempts = 10

// InUseFunc reports whether an id is currently taken. The generator
// re-rolls until it finds a free id; the legacy behavior of not checking
// at all could collide under near-simultaneous creation.
type InUseFunc func(id string) bool

// random returns a raw candidate id, uniform per character.
func random() string {
	b := make([]byte, Length)
	for i := range b {
		b[i] = Alphabet[rand.Intn(len(Alphabet))]
	}
	return string(b)
}

// New generates a match id that inUse reports as free. inUse may be nil,
// in which case the first candidate is returned unchecked.
func New(inUse InUseFunc) (string, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		id := random()
		if inUse == nil || !inUse(id) {
			return id, nil
		}
	}
	return "", matcherrors.ErrIDSpaceBusy
}
