package service

import "time"

// SetClock replaces the service clock.
func (s *AuthService) SetClock(now func() time.Time) {
	s.now = now
}
