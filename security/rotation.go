package security

import "time"

// KeyRotationWindow bounds when a retired key may still decrypt stored
// sessions. A zero bound is open.
type KeyRotationWindow struct {
	NotBefore time.Time
	NotAfter  time.Time
}

// RetireAfter keeps a retired key readable for grace after at, so sessions
// sealed before a rotation survive until they are re-saved under the new key.
func RetireAfter(at time.Time, grace time.Duration) KeyRotationWindow {
	if grace <= 0 {
		return KeyRotationWindow{NotAfter: at.UTC()}
	}
	return KeyRotationWindow{NotAfter: at.UTC().Add(grace)}
}

func (w KeyRotationWindow) Allows(at time.Time) bool {
	ts := at.UTC()
	switch {
	case !w.NotBefore.IsZero() && ts.Before(w.NotBefore.UTC()):
		return false
	case !w.NotAfter.IsZero() && ts.After(w.NotAfter.UTC()):
		return false
	default:
		return true
	}
}
