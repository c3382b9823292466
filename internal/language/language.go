// Package language maps user-facing language names to the codes the
// translation and speech services accept.
package language

import (
	"regexp"
	"strings"
)

// Default is the language replies are composed in.
const Default = "en"

// Language is one row of the code table.
type Language struct {
	Name string
	Code string
	// Substitute marks languages the speech service does not support
	// directly. Their Code points at the closest supported language.
	Substitute bool
}

var table = []Language{
	{Name: "English", Code: "en"},
	{Name: "Hindi", Code: "hi"},
	{Name: "Bengali", Code: "bn"},
	{Name: "Telugu", Code: "te"},
	{Name: "Marathi", Code: "mr"},
	{Name: "Tamil", Code: "ta"},
	{Name: "Urdu", Code: "ur"},
	{Name: "Gujarati", Code: "gu"},
	{Name: "Malayalam", Code: "ml"},
	{Name: "Kannada", Code: "kn"},
	{Name: "Odia", Code: "or"},
	{Name: "Punjabi", Code: "pa"},
	{Name: "Assamese", Code: "as"},
	{Name: "Maithili", Code: "hi", Substitute: true},
	{Name: "Santali", Code: "hi", Substitute: true},
	{Name: "Spanish", Code: "es"},
	{Name: "French", Code: "fr"},
	{Name: "Chinese", Code: "zh-CN"},
}

// All returns the table in display order.
func All() []Language {
	return append([]Language(nil), table...)
}

// Lookup finds a language by name or code, case-insensitively.
func Lookup(value string) (Language, bool) {
	v := strings.TrimSpace(value)
	if v == "" {
		return Language{}, false
	}
	for _, l := range table {
		if strings.EqualFold(l.Name, v) {
			return l, true
		}
	}
	for _, l := range table {
		if !l.Substitute && strings.EqualFold(l.Code, v) {
			return l, true
		}
	}
	// "zh" is accepted as shorthand for simplified Chinese.
	if strings.EqualFold(v, "zh") {
		return Lookup("Chinese")
	}
	return Language{}, false
}

// codePattern matches bare language tags such as "de", "fil" or "pt-BR".
var codePattern = regexp.MustCompile(`^([A-Za-z]{2,3})(?:-([A-Za-z]{2}|[A-Za-z]{4}))?$`)

// Parse is Lookup extended to codes missing from the table. Those pass
// through normalized ("PT-br" becomes "pt-BR") so the translation and
// speech services decide whether they support them. It fails only for
// values that are neither a known name nor shaped like a code.
func Parse(value string) (Language, bool) {
	if l, ok := Lookup(value); ok {
		return l, true
	}
	m := codePattern.FindStringSubmatch(strings.TrimSpace(value))
	if m == nil {
		return Language{}, false
	}
	code := strings.ToLower(m[1])
	switch len(m[2]) {
	case 2:
		code += "-" + strings.ToUpper(m[2])
	case 4:
		code += "-" + strings.ToUpper(m[2][:1]) + strings.ToLower(m[2][1:])
	}
	return Language{Name: code, Code: code}, true
}

// Resolve returns the service code for a language name or code. Empty
// values and names Parse rejects resolve to Default.
func Resolve(value string) string {
	if l, ok := Parse(value); ok {
		return l.Code
	}
	return Default
}

// IsDefault reports whether value resolves to the default language.
func IsDefault(value string) bool {
	return Resolve(value) == Default
}
