package dht

import "github.com/meshring/chordnode/key"

// store is the default local key/value backing for Set/Get/Keys when
// the runner's OnSet/OnGet/OnKeys fields are left unset: a plain map
// kept for the process lifetime, with no persistence across restarts.
type store struct {
	values map[string][]byte
}

func newStore() *store {
	return &store{values: make(map[string][]byte)}
}

func (s *store) set(k key.Key, data []byte) {
	s.values[string(k.Bytes())] = append([]byte(nil), data...)
}

func (s *store) get(k key.Key) ([]byte, bool) {
	v, ok := s.values[string(k.Bytes())]
	return v, ok
}

func (s *store) keys(space *key.Space) []key.Key {
	out := make([]key.Key, 0, len(s.values))
	for raw := range s.values {
		out = append(out, space.FromBytes([]byte(raw)))
	}
	return out
}
