package replica

import "time"

// DefaultComboWindow is how long the first g of a gg chord stays armed.
const DefaultComboWindow = 500 * time.Millisecond

// ComboResult tells the caller what to do with the key it just fed in.
type ComboResult int

const (
	// ComboNone: the key is not part of a chord, handle it normally.
	ComboNone ComboResult = iota
	// ComboPending: the key armed a chord and should be swallowed.
	ComboPending
	// ComboFired: the chord completed.
	ComboFired
)

// ComboDetector recognizes the vim-style gg chord. It is a two-state
// machine: idle, and awaiting-second-g with a deadline. Any other key or
// an expired window resets it. The clock is injectable for tests.
type ComboDetector struct {
	window time.Duration
	now    func() time.Time

	armed   bool
	armedAt time.Time
}

func NewComboDetector(window time.Duration) *ComboDetector {
	if window <= 0 {
		window = DefaultComboWindow
	}
	return &ComboDetector{window: window, now: time.Now}
}

// Press feeds one key into the detector.
func (d *ComboDetector) Press(key string) ComboResult {
	if key != "g" {
		d.armed = false
		return ComboNone
	}
	now := d.now()
	if d.armed && now.Sub(d.armedAt) <= d.window {
		d.armed = false
		return ComboFired
	}
	// First g, or an expired chord restarting.
	d.armed = true
	d.armedAt = now
	return ComboPending
}

// Armed reports whether a chord is waiting for its second key.
func (d *ComboDetector) Armed() bool {
	return d.armed && d.now().Sub(d.armedAt) <= d.window
}

// Reset clears any pending chord.
func (d *ComboDetector) Reset() { d.armed = false }
