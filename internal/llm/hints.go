package llm

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultWaitHint is used when a rate-limit message carries no wait time.
const DefaultWaitHint = 1000 * time.Millisecond

var (
	// Go duration form, e.g. "try again in 6m0s" or "1m30.5s".
	waitDurationRe = regexp.MustCompile(`(?i)(?:try again|retry|wait)[^0-9]{0,20}((?:\d+h)?(?:\d+m)?\d+(?:\.\d+)?(?:ms|s))\b`)
	waitHintRe     = regexp.MustCompile(`(?i)(?:try again|retry|wait)[^0-9]{0,20}(\d+(?:\.\d+)?)\s*(ms|s|sec|seconds?)\b`)
	usedHintRe     = regexp.MustCompile(`(?i)\bused:?\s*(\d+)`)
	reqHintRe      = regexp.MustCompile(`(?i)\brequested:?\s*(\d+)`)
	limitHintRe    = regexp.MustCompile(`(?i)\blimit:?\s*(\d+)`)
)

// TokenHint is what a provider said about the window when it throttled us.
// Zero fields were not present in the message.
type TokenHint struct {
	Limit     int
	Used      int
	Requested int
}

// ParseWaitHint extracts the suggested wait from messages such as
// "Please try again in 1.234s", "try again in 850ms" or "try again in 6m0s".
// It returns DefaultWaitHint when no hint is present.
func ParseWaitHint(msg string) time.Duration {
	if m := waitDurationRe.FindStringSubmatch(msg); m != nil {
		if d, err := time.ParseDuration(strings.ToLower(m[1])); err == nil && d > 0 {
			return d
		}
	}
	m := waitHintRe.FindStringSubmatch(msg)
	if m == nil {
		return DefaultWaitHint
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil || v <= 0 {
		return DefaultWaitHint
	}
	if strings.EqualFold(m[2], "ms") {
		return time.Duration(math.Round(v * float64(time.Millisecond)))
	}
	return time.Duration(math.Round(v * float64(time.Second)))
}

// ParseTokenHint extracts "Limit N, Used N, Requested N" style counters.
func ParseTokenHint(msg string) TokenHint {
	return TokenHint{
		Limit:     firstInt(limitHintRe, msg),
		Used:      firstInt(usedHintRe, msg),
		Requested: firstInt(reqHintRe, msg),
	}
}

// BackoffDelay grows the provider hint by 1.5 per attempt. attempt is 1-based.
func BackoffDelay(hint time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(math.Round(float64(hint) * math.Pow(1.5, float64(attempt-1))))
}

func firstInt(re *regexp.Regexp, s string) int {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}
