package relay

import (
	"regexp"
	"strings"

	"signalrelay/internal/domain"
)

// Marker glyphs that tag which field a signal line carries.
const (
	markerAsset        = "💳"
	markerFire         = "🔥"
	markerHourglass    = "⌛"
	markerHourglassRun = "⏳"
	markerUp           = "🔼"
	markerDown         = "🔽"
)

var (
	timeframePattern = regexp.MustCompile(`(?i)^M(\d+)$`)
	trendPattern     = regexp.MustCompile(`(?i)trend\s*:(.*)$`)
	forecastPattern  = regexp.MustCompile(`(?i)forecast\s*:(.*)$`)
	payoutPattern    = regexp.MustCompile(`(?i)payout\s*:(.*)$`)
)

// lineRule extracts one field from a line it matches.
// Rules are evaluated in order and only the first match applies to a line.
type lineRule struct {
	name  string
	match func(line string) bool
	apply func(f *domain.SignalFields, line string)
}

var signalLineRules = []lineRule{
	{
		name:  "asset",
		match: containsFunc(markerAsset),
		apply: func(f *domain.SignalFields, line string) {
			setIfPresent(&f.Asset, strip(line, markerAsset))
		},
	},
	{
		name:  "timeframe",
		match: containsFunc(markerFire),
		apply: func(f *domain.SignalFields, line string) {
			setIfPresent(&f.Timeframe, formatTimeframe(strip(line, markerFire)))
		},
	},
	{
		name: "entry_time",
		match: func(line string) bool {
			return strings.Contains(line, markerHourglass) || strings.Contains(line, markerHourglassRun)
		},
		apply: func(f *domain.SignalFields, line string) {
			setIfPresent(&f.EntryTime, strip(line, markerHourglass, markerHourglassRun))
		},
	},
	{
		name: "direction",
		match: func(line string) bool {
			return strings.Contains(line, markerUp) || strings.Contains(line, markerDown)
		},
		apply: applyDirection,
	},
	{
		name:  "trend",
		match: trendPattern.MatchString,
		apply: func(f *domain.SignalFields, line string) {
			setIfPresent(&f.Trend, labelValue(trendPattern, line))
		},
	},
	{
		name:  "forecast",
		match: forecastPattern.MatchString,
		apply: func(f *domain.SignalFields, line string) {
			setIfPresent(&f.Forecast, labelValue(forecastPattern, line))
		},
	},
	{
		name:  "payout",
		match: payoutPattern.MatchString,
		apply: func(f *domain.SignalFields, line string) {
			setIfPresent(&f.PayoutRate, labelValue(payoutPattern, line))
		},
	},
}

// isSignal reports whether the lines carry both the asset and the fire marker.
func isSignal(lines []string) bool {
	var asset, fire bool
	for _, line := range lines {
		asset = asset || strings.Contains(line, markerAsset)
		fire = fire || strings.Contains(line, markerFire)
	}
	return asset && fire
}

// extractSignal scans every line and fills the fields it recognises.
// Unknown lines are skipped and unset fields stay at domain.NotAvailable.
func extractSignal(lines []string) domain.SignalFields {
	f := domain.NewSignalFields()
	for _, line := range lines {
		for _, rule := range signalLineRules {
			if rule.match(line) {
				rule.apply(&f, line)
				break
			}
		}
	}
	return f
}

func applyDirection(f *domain.SignalFields, line string) {
	raw := strip(line, markerUp, markerDown)
	switch strings.ToLower(raw) {
	case "call":
		f.Direction = domain.DirectionUp
	case "put":
		f.Direction = domain.DirectionDown
	default:
		f.Direction = domain.DirectionUnknown
		setIfPresent(&f.DirectionLabel, strings.ToUpper(raw))
	}
}

// formatTimeframe turns "M5" into "5 Minutes" and leaves anything else as is.
func formatTimeframe(raw string) string {
	m := timeframePattern.FindStringSubmatch(raw)
	if m == nil {
		return raw
	}
	if m[1] == "1" {
		return "1 Minute"
	}
	return m[1] + " Minutes"
}

func labelValue(re *regexp.Regexp, line string) string {
	m := re.FindStringSubmatch(line)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func strip(line string, markers ...string) string {
	for _, m := range markers {
		line = strings.ReplaceAll(line, m, "")
	}
	return strings.TrimSpace(line)
}

func setIfPresent(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func containsFunc(marker string) func(string) bool {
	return func(line string) bool { return strings.Contains(line, marker) }
}

// splitLines splits on \n, \r\n and bare \r.
func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.Split(text, "\n")
}
