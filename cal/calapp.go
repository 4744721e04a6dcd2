package cal

import (
	"fmt"
	"time"
)

// Origin records which pipeline stage registered a calibration and when.
// Timestamps drive the stable ordering of overlapping applications.
type Origin struct {
	StageID int       `yaml:"stage"`
	Task    string    `yaml:"task"`
	Time    time.Time `yaml:"time"`
}

// CalApplication binds one calibration table to one data subset: "apply this
// table, this way, to these rows". Created when a stage registers a result
// and destroyed only by explicit unregistration or a state clear.
type CalApplication struct {
	To     CalTo
	From   *CalFrom
	Origin Origin

	// seq is assigned by the registering CalState and totals the ordering
	// when two applications carry identical timestamps.
	seq int64
}

func (a *CalApplication) String() string {
	return fmt.Sprintf("%s -> %s (%s, stage %d)", a.From.Table, a.To, a.From.CalType, a.Origin.StageID)
}

// before orders applications oldest first. Timestamp is primary; the
// registration sequence breaks ties, and origin/table fields keep the order
// deterministic across states merged from independent runs.
func (a *CalApplication) before(b *CalApplication) bool {
	if !a.Origin.Time.Equal(b.Origin.Time) {
		return a.Origin.Time.Before(b.Origin.Time)
	}
	if a.seq != b.seq {
		return a.seq < b.seq
	}
	if a.Origin.StageID != b.Origin.StageID {
		return a.Origin.StageID < b.Origin.StageID
	}
	return a.From.Table < b.From.Table
}

// Matcher selects applications by predicate: used for queries that exclude
// certain calibration types, for unregistration and for promotion from the
// active to the applied state.
type Matcher func(*CalApplication) bool

// MatchTable matches applications referencing the given table path.
func MatchTable(table string) Matcher {
	return func(a *CalApplication) bool { return a.From.Table == table }
}

// MatchCalType matches applications of any of the given calibration types.
func MatchCalType(types ...CalType) Matcher {
	return func(a *CalApplication) bool {
		for _, t := range types {
			if a.From.CalType == t {
				return true
			}
		}
		return false
	}
}

// MatchVis matches applications registered against the given vis.
func MatchVis(vis string) Matcher {
	return func(a *CalApplication) bool { return a.To.Vis == vis }
}

// MatchAnd matches applications satisfying every given matcher.
func MatchAnd(ms ...Matcher) Matcher {
	return func(a *CalApplication) bool {
		for _, m := range ms {
			if !m(a) {
				return false
			}
		}
		return true
	}
}

// MatchNot inverts a matcher.
func MatchNot(m Matcher) Matcher {
	return func(a *CalApplication) bool { return !m(a) }
}
