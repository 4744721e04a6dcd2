package cal

import "github.com/sirupsen/logrus"

// CalLibrary is the run's calibration bookkeeping: the active state holds
// applications queued but not yet executed, the applied state accumulates
// what has already been applied so identical calibration is never applied to
// the same subset twice.
type CalLibrary struct {
	Active  *CalState
	Applied *CalState
}

// NewCalLibrary builds an empty library with three-axis states.
func NewCalLibrary() *CalLibrary {
	return &CalLibrary{Active: NewCalState(), Applied: NewCalState()}
}

// RegisterShape records dataset extents with both states.
func (l *CalLibrary) RegisterShape(shape VisShape) error {
	if err := l.Active.RegisterShape(shape); err != nil {
		return err
	}
	return l.Applied.RegisterShape(shape)
}

// Add queues one application in the active state.
func (l *CalLibrary) Add(app CalApplication) error {
	return l.Active.Add(app)
}

// MarkAsApplied moves matching applications from active to applied,
// preserving their origin metadata and relative order. Returns how many
// applications moved.
func (l *CalLibrary) MarkAsApplied(m Matcher) (int, error) {
	removed := l.Active.remove(m)
	for _, app := range removed {
		moved := CalApplication{To: app.To, From: app.From, Origin: app.Origin}
		if err := l.Applied.Add(moved); err != nil {
			return 0, err
		}
	}
	if len(removed) > 0 {
		logrus.Debugf("callibrary: marked %d applications as applied", len(removed))
	}
	return len(removed), nil
}

// Unregister removes matching applications from the active state only: a
// calibration discarded as invalid (for example, one computed on flagged
// data) rather than superseded. Returns how many were removed.
func (l *CalLibrary) Unregister(m Matcher) int {
	removed := l.Active.remove(m)
	if len(removed) > 0 {
		logrus.Debugf("callibrary: unregistered %d applications", len(removed))
	}
	return len(removed)
}

// Clear empties the active state. The applied state is untouched: the apply
// history must survive so idempotence checks keep working across the run.
func (l *CalLibrary) Clear() {
	l.Active.Clear()
}
