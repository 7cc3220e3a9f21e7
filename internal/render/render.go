package render

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/relaypoint/notifier/internal/domain"
)

// Context is the name → value map placeholders resolve against.
type Context map[string]any

// BuildContext merges the event payload with the injected recipient fields.
// A user_name present in the payload wins over the derived one.
func BuildContext(ev *domain.RoutedEvent) Context {
	c := make(Context, len(ev.Data)+2)
	for k, v := range ev.Data {
		c[k] = v
	}
	if _, ok := c["user_name"]; !ok {
		c["user_name"] = userName(ev.UserEmail)
	}
	c["user_email"] = ev.UserEmail
	return c
}

func userName(email string) string {
	if email == "" {
		return "User"
	}
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return email
}

// Fallback synthesizes a template when none is stored for the
// (channel, event_type) pair.
func Fallback(ev *domain.RoutedEvent) *domain.Template {
	body, err := json.Marshal(ev.Data)
	if err != nil {
		body = []byte("{}")
	}
	return &domain.Template{
		Channel:   ev.Channel,
		EventType: ev.EventType,
		Subject:   "Notification: " + string(ev.EventType),
		Body:      string(body),
	}
}

// Render substitutes every declared variable in subject and body. Only
// names listed in the template's variables are touched; placeholders for
// undeclared names stay in place, and declared names missing from the
// context render as the empty string.
func Render(tpl *domain.Template, c Context) (subject, body string) {
	subject, body = tpl.Subject, tpl.Body
	for _, name := range tpl.Variables {
		placeholder := "{{" + name + "}}"
		value := toString(c[name])
		subject = strings.ReplaceAll(subject, placeholder, value)
		body = strings.ReplaceAll(body, placeholder, value)
	}
	return subject, body
}

// toString maps a decoded JSON value onto its textual form; null and
// missing values render as "".
func toString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(raw)
	}
}
