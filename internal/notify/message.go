package notify

import (
	"fmt"
	"html"
	"strings"

	"taskpulse/internal/engine"
)

func deepLink(baseURL, taskID string) string {
	return strings.TrimRight(baseURL, "/") + "/tasks/" + taskID
}

func emailSubject(t engine.Task, target engine.Status) string {
	if target == engine.StatusFailed {
		return fmt.Sprintf("Automated checks failed for %q", t.Title)
	}
	return fmt.Sprintf("%q is due for review", t.Title)
}

func emailBody(name string, t engine.Task, target engine.Status, link string) string {
	title := html.EscapeString(t.Title)
	greeting := "Hi,"
	if strings.TrimSpace(name) != "" {
		greeting = "Hi " + html.EscapeString(name) + ","
	}

	var reason string
	if target == engine.StatusFailed {
		reason = "one or more automated evidence checks attached to it are no longer passing"
	} else {
		reason = "its review period has elapsed and it needs to be reviewed again"
	}

	return fmt.Sprintf(
		`<p>%s</p>
<p>The recurring compliance task <strong>%s</strong> has been reopened: %s.</p>
<p><a href="%s">Review the task</a></p>`,
		greeting, title, reason, link,
	)
}
