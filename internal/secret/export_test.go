package secret

import "time"

// SetClock replaces the timestamp source so tests get stable output.
func (s *TokenFile) SetClock(now func() time.Time) { s.now = now }
