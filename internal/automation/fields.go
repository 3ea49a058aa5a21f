package automation

import (
	"strings"

	"github.com/mikey/giveaway-engine/internal/core"
)

// defaultAliases maps common form field spellings to profile keys
var defaultAliases = map[string]string{
	"fname":        "firstname",
	"givenname":    "firstname",
	"lname":        "lastname",
	"surname":      "lastname",
	"familyname":   "lastname",
	"name":         "fullname",
	"yourname":     "fullname",
	"mail":         "email",
	"emailaddress": "email",
	"youremail":    "email",
	"tel":          "phone",
	"phonenumber":  "phone",
	"mobile":       "phone",
	"zip":          "zipcode",
	"postcode":     "zipcode",
	"postalcode":   "zipcode",
	"address":      "street",
	"address1":     "street",
}

// fieldTypes that are never filled from the profile
var skippedTypes = map[string]bool{
	"submit": true,
	"button": true,
	"hidden": true,
	"reset":  true,
	"image":  true,
}

type assignment struct {
	field string
	value string
}

// canonical lowercases name and drops everything but letters and digits,
// so "First-Name", "first_name" and "firstName" all match.
func canonical(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// planFields maps the located form onto profile values. Required fields
// without a value are reported as missing; optional ones are left blank.
func planFields(shape *core.FormShape, fields, aliases map[string]string) ([]assignment, []string) {
	values := make(map[string]string, len(fields))
	for k, v := range fields {
		values[canonical(k)] = v
	}

	var plan []assignment
	var missing []string
	seen := make(map[string]bool)
	for _, f := range shape.Fields {
		if f.Name == "" || skippedTypes[strings.ToLower(f.Type)] || seen[f.Name] {
			continue
		}
		seen[f.Name] = true

		value, ok := resolve(canonical(f.Name), values, aliases)
		if !ok {
			if f.Required {
				missing = append(missing, f.Name)
			}
			continue
		}
		plan = append(plan, assignment{field: f.Name, value: value})
	}
	return plan, missing
}

func resolve(key string, values, aliases map[string]string) (string, bool) {
	if v, ok := values[key]; ok {
		return v, true
	}
	for k, target := range aliases {
		if canonical(k) == key {
			if v, ok := values[canonical(target)]; ok {
				return v, true
			}
		}
	}
	if target, ok := defaultAliases[key]; ok {
		if v, ok := values[target]; ok {
			return v, true
		}
	}
	return "", false
}
