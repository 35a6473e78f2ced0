package capacity

import (
	"regexp"
	"strconv"
	"strings"
)

// Verdict is the terminal state of a capacity audit.
type Verdict string

const (
	VerdictCancelled     Verdict = "cancelled"
	VerdictFailed        Verdict = "failed"
	VerdictGenuine       Verdict = "genuine"
	VerdictCounterfeit   Verdict = "counterfeit"
	VerdictIndeterminate Verdict = "indeterminate"
)

// f3read prints a summary such as
//
//	  Data OK: 14.83 GB (31104512 sectors)
//	Data LOST: 0.00 Byte (0 sectors)
var (
	dataOKRe   = regexp.MustCompile(`(?m)^\s*Data OK:.*\((\d+) sectors\)`)
	dataLostRe = regexp.MustCompile(`(?m)^\s*Data LOST:.*\((\d+) sectors\)`)
)

// Classify derives a verdict from f3read's exit code and output. The summary
// grammar is used when present; otherwise it falls back to phrase matching.
func Classify(exitCode int, output string) Verdict {
	if lost, ok := lostSectors(output); ok {
		switch {
		case lost > 0:
			return VerdictCounterfeit
		case exitCode == 0:
			return VerdictGenuine
		default:
			return VerdictIndeterminate
		}
	}

	lower := strings.ToLower(output)
	if strings.Contains(lower, "data lost") {
		return VerdictCounterfeit
	}
	if exitCode == 0 && strings.Contains(output, "OK") {
		return VerdictGenuine
	}
	return VerdictIndeterminate
}

// lostSectors returns the Data LOST sector count when both summary lines are present.
func lostSectors(output string) (int64, bool) {
	if !dataOKRe.MatchString(output) {
		return 0, false
	}
	m := dataLostRe.FindStringSubmatch(output)
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
