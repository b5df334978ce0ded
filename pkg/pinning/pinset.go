// Package pinning validates observed SPKI hashes against a pinset with a
// bounded rotation window.
package pinning

import "time"

// Pinset is the set of acceptable SPKI pins for an app. Current pins always
// match; previous pins stay valid only while the rotation window is open.
type Pinset struct {
	CurrentSPKIHashes  []string
	PreviousSPKIHashes []string
	RotatedAt          *time.Time
	RotationWindowDays *int
}

// IsAllowed reports whether an observed SPKI hash may be accepted at the
// given time. Hashes are opaque strings compared exactly.
func (p Pinset) IsAllowed(observed string, now time.Time) bool {
	for _, h := range p.CurrentSPKIHashes {
		if h == observed {
			return true
		}
	}
	for _, h := range p.PreviousSPKIHashes {
		if h == observed {
			return p.rotationWindowOpen(now)
		}
	}
	return false
}

// rotationWindowOpen requires both rotation fields; the deadline itself is
// still inside the window. Days are exact 24-hour spans.
func (p Pinset) rotationWindowOpen(now time.Time) bool {
	if p.RotatedAt == nil || p.RotationWindowDays == nil {
		return false
	}
	deadline := p.RotatedAt.Add(time.Duration(*p.RotationWindowDays) * 24 * time.Hour)
	return !now.After(deadline)
}
