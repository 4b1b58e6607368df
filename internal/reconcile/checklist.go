package reconcile

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	uncheckedPrefix = "- [ ] #"
	checkedPrefix   = "- [x] #"
)

func checklistPattern(prefix string, issue int64) *regexp.Regexp {
	return regexp.MustCompile(regexp.QuoteMeta(fmt.Sprintf("%s%d", prefix, issue)) + `(\D|$)`)
}

// ToggleChecklist rewrites every "- [ ] #N" line item for issue to
// "- [x] #N" (or back when checked is false). A reference to #N never
// matches #N0 or any longer number. The second result reports whether the
// body changed; a body that does not mention the issue is returned as is.
// Every item for the issue ends in the same state, so closing then
// reopening restores the body only when the issue appears once or all its
// items started unchecked.
func ToggleChecklist(body string, issue int64, checked bool) (string, bool) {
	from, to := uncheckedPrefix, checkedPrefix
	if !checked {
		from, to = checkedPrefix, uncheckedPrefix
	}
	if !strings.Contains(body, fmt.Sprintf("%s%d", from, issue)) {
		return body, false
	}
	re := checklistPattern(from, issue)
	repl := fmt.Sprintf("%s%d", to, issue)
	out := re.ReplaceAllString(body, repl+"${1}")
	return out, out != body
}

// MentionsIssue reports whether body has a checklist item for issue in
// either state.
func MentionsIssue(body string, issue int64) bool {
	return checklistPattern(uncheckedPrefix, issue).MatchString(body) ||
		checklistPattern(checkedPrefix, issue).MatchString(body)
}

// ChecklistLine renders one checklist item.
func ChecklistLine(issue int64, title string, checked bool) string {
	prefix := uncheckedPrefix
	if checked {
		prefix = checkedPrefix
	}
	line := fmt.Sprintf("%s%d", prefix, issue)
	if title != "" {
		line += " " + title
	}
	return line
}
