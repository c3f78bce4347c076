package handler

import (
	"encoding/json"
	"fmt"
	"html/template"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// TemplateFuncs returns a FuncMap with custom template functions
func TemplateFuncs() template.FuncMap {
	return template.FuncMap{
		// Math functions
		"div": func(a, b int) int {
			if b == 0 {
				return 0
			}
			return a / b
		},
		"add": func(a, b int) int {
			return a + b
		},
		"sub": func(a, b int) int {
			return a - b
		},
		"mul": func(a, b int) int {
			return a * b
		},
		"min": func(a, b int) int {
			if a < b {
				return a
			}
			return b
		},

		// Date/Time functions
		"year": func() int {
			return time.Now().Year()
		},
		"formatDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("Jan 2, 2006")
		},
		"formatDateTime": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("Jan 2, 2006 3:04 PM")
		},
		"timeAgo": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			now := time.Now()
			diff := now.Sub(t)

			switch {
			case diff < time.Minute:
				return "just now"
			case diff < time.Hour:
				mins := int(diff.Minutes())
				if mins == 1 {
					return "1 minute ago"
				}
				return fmt.Sprintf("%d minutes ago", mins)
			case diff < 24*time.Hour:
				hours := int(diff.Hours())
				if hours == 1 {
					return "1 hour ago"
				}
				return fmt.Sprintf("%d hours ago", hours)
			case diff < 7*24*time.Hour:
				days := int(diff.Hours() / 24)
				if days == 1 {
					return "yesterday"
				}
				return fmt.Sprintf("%d days ago", days)
			default:
				return t.Format("Jan 2, 2006")
			}
		},

		// String functions
		"hasPrefix": func(s, prefix string) bool {
			return strings.HasPrefix(s, prefix)
		},
		"contains": func(s, substr string) bool {
			return strings.Contains(s, substr)
		},
		"lower": func(s string) string {
			return strings.ToLower(s)
		},
		"upper": func(s string) string {
			return strings.ToUpper(s)
		},
		"title": func(v interface{}) string {
			s := fmt.Sprint(v)
			return cases.Title(language.English).String(s)
		},
		"truncate": func(s string, length int) string {
			if len(s) <= length {
				return s
			}
			return s[:length] + "..."
		},
		// JSON encoding for safe JavaScript embedding
		"json": func(v interface{}) template.JS {
			b, err := json.Marshal(v)
			if err != nil {
				return template.JS(`""`)
			}
			return template.JS(b)
		},

		// Conditional/Logic functions
		"ternary": func(condition bool, trueVal, falseVal interface{}) interface{} {
			if condition {
				return trueVal
			}
			return falseVal
		},
		"default": func(defaultVal, val interface{}) interface{} {
			if val == nil || val == "" || val == 0 {
				return defaultVal
			}
			return val
		},

		// Collection functions
		"list": func(items ...interface{}) []interface{} {
			return items
		},
		"dict": func(values ...interface{}) map[string]interface{} {
			if len(values)%2 != 0 {
				return nil
			}
			dict := make(map[string]interface{}, len(values)/2)
			for i := 0; i < len(values); i += 2 {
				key, ok := values[i].(string)
				if !ok {
					return nil
				}
				dict[key] = values[i+1]
			}
			return dict
		},

		// HTML rendering functions
		"html": func(s string) template.HTML {
			return template.HTML(s)
		},
		"attr": func(s string) template.HTMLAttr {
			return template.HTMLAttr(s)
		},
		"safeURL": func(s string) template.URL {
			return template.URL(s)
		},
		// Base64 slip images arrive from the history endpoint without a
		// data: prefix.
		"slipDataURI": func(imageData string) template.URL {
			if imageData == "" {
				return ""
			}
			if strings.HasPrefix(imageData, "data:") {
				return template.URL(imageData)
			}
			return template.URL("data:image/jpeg;base64," + imageData)
		},

		// Form helpers
		"csrfField": func(token string) template.HTML {
			return template.HTML(fmt.Sprintf(`<input type="hidden" name="csrf_token" value="%s">`, template.HTMLEscapeString(token)))
		},

		// Pointer helpers for optional analysis fields
		"deref": func(p *int) int {
			if p == nil {
				return 0
			}
			return *p
		},
		"derefFloat": func(p *float64) float64 {
			if p == nil {
				return 0
			}
			return *p
		},
		"derefTime": func(p *time.Time) time.Time {
			if p == nil {
				return time.Time{}
			}
			return *p
		},

		// Number formatting
		"formatPercent": func(v float64) string {
			return fmt.Sprintf("%.1f%%", v)
		},
		"formatMoney": func(v float64) string {
			return fmt.Sprintf("$%.2f", v)
		},

		// Badge helpers for analysis results
		"probabilityColor": func(p float64) string {
			switch {
			case p >= 60:
				return "bg-green-100 text-green-800"
			case p >= 40:
				return "bg-yellow-100 text-yellow-800"
			default:
				return "bg-red-100 text-red-800"
			}
		},
		"confidenceColor": func(score int) string {
			switch {
			case score >= 8:
				return "text-green-700"
			case score >= 5:
				return "text-yellow-700"
			default:
				return "text-red-700"
			}
		},
		"outcomeColor": func(result interface{}) string {
			s := fmt.Sprint(result)
			switch s {
			case "won":
				return "bg-green-100 text-green-800"
			case "lost":
				return "bg-red-100 text-red-800"
			case "push":
				return "bg-gray-100 text-gray-600"
			default:
				return "bg-blue-100 text-blue-800"
			}
		},
		"recommendationColor": func(rec interface{}) string {
			s := strings.ToLower(fmt.Sprint(rec))
			switch {
			case strings.Contains(s, "strong"):
				return "bg-green-100 text-green-800"
			case strings.Contains(s, "avoid"), strings.Contains(s, "pass"):
				return "bg-red-100 text-red-800"
			default:
				return "bg-yellow-100 text-yellow-800"
			}
		},
	}
}
