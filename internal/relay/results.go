package relay

import (
	"regexp"
	"strings"

	"signalrelay/internal/domain"
)

const (
	superscriptOne = "¹"
	superscriptTwo = "²"
)

// winMark matches "WIN ✅" with or without the space.
var winMark = regexp.MustCompile(`WIN\s*✅`)

// resultRule maps an upper-cased text to a category.
// refine, when set, may replace the category once the rule matched.
type resultRule struct {
	category domain.ResultCategory
	match    func(upper string) bool
	refine   func(upper string) domain.ResultCategory
}

// resultRules is a strict priority chain: the first match wins.
// A "WIN ✅²" is a loss in this scoring convention, so rule 2 excludes
// superscripts and rule 3 picks it up.
var resultRules = []resultRule{
	{
		category: domain.ResultMTGWin,
		match: func(u string) bool {
			return (winMark.MatchString(u) && strings.Contains(u, superscriptOne)) ||
				strings.Contains(u, "MTG WIN")
		},
	},
	{
		category: domain.ResultWin,
		match: func(u string) bool {
			return winMark.MatchString(u) &&
				!strings.Contains(u, superscriptOne) &&
				!strings.Contains(u, superscriptTwo)
		},
	},
	{
		category: domain.ResultLoss,
		match: func(u string) bool {
			return (winMark.MatchString(u) && strings.Contains(u, superscriptTwo)) ||
				strings.Contains(u, "💔 LOSS") ||
				strings.Contains(u, "LOSS")
		},
		refine: func(u string) domain.ResultCategory {
			if strings.Contains(u, "CONSEC") || strings.Contains(u, "2 LOSS") {
				return domain.ResultLossConsecutive
			}
			return domain.ResultLoss
		},
	},
	{
		category: domain.ResultDoji,
		match: func(u string) bool {
			return strings.Contains(u, "DOJI") || strings.Contains(u, "⚖")
		},
	},
}

// classifyResult returns the category of an upper-cased result notice.
func classifyResult(upper string) (domain.ResultCategory, bool) {
	for _, rule := range resultRules {
		if !rule.match(upper) {
			continue
		}
		if rule.refine != nil {
			return rule.refine(upper), true
		}
		return rule.category, true
	}
	return "", false
}
