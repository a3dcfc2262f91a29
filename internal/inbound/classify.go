package inbound

import "strings"

type Intent string

const (
	IntentApprove  Intent = "approve"
	IntentLater    Intent = "later"
	IntentSkip     Intent = "skip"
	IntentFreeText Intent = "free_text"
)

var (
	affirmative = map[string]struct{}{"y": {}, "yes": {}, "yeah": {}, "yep": {}}
	negative    = map[string]struct{}{"skip": {}, "no": {}, "nope": {}, "cancel": {}}
)

// Classify maps a reply body to a quick-reply intent. For IntentLater the
// second result is the text after "later".
func Classify(body string) (Intent, string) {
	norm := strings.ToLower(strings.TrimSpace(body))
	word := strings.TrimRight(norm, ".!")

	if _, ok := affirmative[word]; ok {
		return IntentApprove, ""
	}
	if _, ok := negative[word]; ok {
		return IntentSkip, ""
	}
	if fields := strings.Fields(norm); len(fields) > 0 && fields[0] == "later" {
		return IntentLater, strings.TrimSpace(strings.TrimPrefix(norm, "later"))
	}
	return IntentFreeText, ""
}
