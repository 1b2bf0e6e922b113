package tool

import (
	"regexp"
	"strings"
)

// Issue describes a lint finding on a definition.
type Issue struct {
	Rule    string
	Message string
}

var namePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// Lint runs static checks on a definition. Registration rejects any definition
// with issues.
func Lint(d Definition) []Issue {
	var issues []Issue
	if d.Name == "" {
		issues = append(issues, Issue{Rule: "name.required", Message: "name is required"})
	} else if !namePattern.MatchString(d.Name) {
		issues = append(issues, Issue{Rule: "name.format", Message: "name must match " + namePattern.String()})
	}
	if strings.TrimSpace(d.Description) == "" {
		issues = append(issues, Issue{Rule: "description.required", Message: "description is empty"})
	}
	if d.Handler == nil {
		issues = append(issues, Issue{Rule: "handler.required", Message: "handler is nil"})
	}
	seen := make(map[string]bool, len(d.Fields))
	for _, f := range d.Fields {
		switch {
		case f.Name == "":
			issues = append(issues, Issue{Rule: "field.name", Message: "field name is empty"})
		case seen[f.Name]:
			issues = append(issues, Issue{Rule: "field.duplicate", Message: "field " + f.Name + " declared twice"})
		case !f.Type.valid():
			issues = append(issues, Issue{Rule: "field.type", Message: "field " + f.Name + " has unsupported type " + string(f.Type)})
		}
		seen[f.Name] = true
		if containsSecretLike(f.Description) {
			issues = append(issues, Issue{Rule: "security.secrets", Message: "field " + f.Name + " description appears to contain secrets-like content"})
		}
	}
	if containsSecretLike(d.Description) {
		issues = append(issues, Issue{Rule: "security.secrets", Message: "description appears to contain secrets-like content"})
	}
	return issues
}

func containsSecretLike(s string) bool {
	if s == "" {
		return false
	}
	ls := strings.ToLower(s)
	for _, n := range []string{"aws_secret_access_key", "begin private key", "sk-", "ghp_"} {
		if strings.Contains(ls, n) {
			return true
		}
	}
	return false
}

func joinRules(issues []Issue) string {
	rules := make([]string, 0, len(issues))
	for _, i := range issues {
		rules = append(rules, i.Rule)
	}
	return strings.Join(rules, ",")
}
