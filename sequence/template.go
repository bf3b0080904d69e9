package sequence

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"nurtureflow/store"
)

var (
	// ErrTemplateInvalid covers a template that exists but cannot be sent:
	// an empty subject or body is a broken template, not "nothing to
	// substitute".
	ErrTemplateInvalid = errors.New("template invalid")

	// ErrUnresolvedVariables means required placeholders survived
	// substitution. Sending literal {{placeholders}} to a lead is worse
	// than not sending at all.
	ErrUnresolvedVariables = errors.New("unresolved template variables")
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// Resolver fetches a named template from the record store and personalizes
// it at send time.
type Resolver struct {
	Store store.RecordStore
}

func NewResolver(recordStore store.RecordStore) *Resolver {
	return &Resolver{Store: recordStore}
}

// Resolve returns the personalized subject and body for the named template.
// Variables declared optional substitute to empty when absent; any other
// leftover placeholder is a hard failure.
func (r *Resolver) Resolve(ctx context.Context, name string, vars map[string]string, optional []string) (string, string, error) {
	tmpl, err := r.Store.GetTemplate(ctx, name)
	if err != nil {
		return "", "", err
	}

	if strings.TrimSpace(tmpl.Subject) == "" || strings.TrimSpace(tmpl.HTMLContent) == "" {
		return "", "", fmt.Errorf("%w: %s has an empty subject or body", ErrTemplateInvalid, name)
	}

	optionalSet := make(map[string]bool, len(optional))
	for _, v := range optional {
		optionalSet[v] = true
	}

	subject, missingSubject := substitute(tmpl.Subject, vars, optionalSet)
	body, missingBody := substitute(tmpl.HTMLContent, vars, optionalSet)

	if missing := dedupe(append(missingSubject, missingBody...)); len(missing) > 0 {
		return "", "", fmt.Errorf("%w in %s: %s", ErrUnresolvedVariables, name, strings.Join(missing, ", "))
	}

	return subject, body, nil
}

func substitute(text string, vars map[string]string, optional map[string]bool) (string, []string) {
	var missing []string
	out := placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		if value, ok := vars[name]; ok {
			return value
		}
		if optional[name] {
			return ""
		}
		missing = append(missing, name)
		return match
	})
	return out, missing
}

func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	var out []string
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}
