package parse

import (
	"strconv"
	"time"
)

const dateLayout = "2006-01-02"

// earliestDate is the lower bound used when a date range has no start.
var earliestDate = time.Date(1971, time.January, 1, 0, 0, 0, 0, time.UTC)

// RevRange builds a newest-first revision range for log queries. "tip" and
// "HEAD" resolve to head, and a "to" beyond head is clamped. When "from" lies
// beyond head there is nothing to list and ok is false; callers return an
// empty result without invoking the engine. A negative head means it is not
// known: symbolic names become "tip" and nothing is clamped.
func RevRange(from, to string, head int) (rng string, ok bool) {
	headRev := "tip"
	if head >= 0 {
		headRev = strconv.Itoa(head)
	}
	from = resolveSymbolic(from, headRev)
	to = resolveSymbolic(to, headRev)

	if head >= 0 {
		if n, err := strconv.Atoi(to); err == nil && n > head {
			to = headRev
		}
		if n, err := strconv.Atoi(from); err == nil && n > head {
			return "", false
		}
	}

	switch {
	case from != "" && to != "":
		return to + ":" + from, true
	case from != "":
		return "tip:" + from, true
	case to != "":
		return to + ":0", true
	default:
		return "tip:0", true
	}
}

func resolveSymbolic(rev, head string) string {
	if rev == "tip" || rev == "HEAD" {
		return head
	}
	return rev
}

// DateRange builds an hg date spec "from to to". Zero bounds default to
// 1971-01-01 and now. ok is false when from is after to.
func DateRange(from, to, now time.Time) (string, bool) {
	if from.IsZero() {
		from = earliestDate
	}
	if to.IsZero() {
		to = now
	}
	if from.After(to) {
		return "", false
	}
	return from.Format(dateLayout) + " to " + to.Format(dateLayout), true
}
