package collect

import (
	"regexp"
	"sort"

	"github.com/karev/glharvest/internal/gitlab"
)

const (
	operationCreateConstant = "create"
	operationUpdateConstant = "update"
	operationDeleteConstant = "delete"
	operationOtherConstant  = "others"
)

// operationKeywordPatterns maps an operation class to the keyword patterns
// that select it. Classes are checked in declaration order so a value that
// mentions both creation and removal resolves to the first matching class.
var operationKeywordPatterns = []struct {
	operation string
	patterns  []*regexp.Regexp
}{
	{
		operation: operationCreateConstant,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(add|created|added|new|inserted|registered|generate)\b`),
			regexp.MustCompile(`(?i)\b(create|generation|generated)\b`),
		},
	},
	{
		operation: operationUpdateConstant,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(change|updated|modify|modified|edit|edited|alter|altered)\b`),
			regexp.MustCompile(`(?i)\b(update|revision|revised)\b`),
		},
	},
	{
		operation: operationDeleteConstant,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(remove|destroyed|deleted|eliminated|dropped|unregister)\b`),
			regexp.MustCompile(`(?i)\b(delete|deletion|deregister)\b`),
		},
	},
}

// classifyKeywords returns the operation class matched by value, or the
// empty string when no keyword applies.
func classifyKeywords(value string) string {
	if len(value) == 0 {
		return ""
	}
	for _, group := range operationKeywordPatterns {
		for _, pattern := range group.patterns {
			if pattern.MatchString(value) {
				return group.operation
			}
		}
	}
	return ""
}

// classifyAuditOperation derives the operation class of an audit event.
// Detail key names are inspected first, then the event name, then the
// detail values. Map iteration is ordered by key so repeated runs over the
// same payload classify identically.
func classifyAuditOperation(event gitlab.AuditEvent) string {
	detailKeys := make([]string, 0, len(event.Details))
	for detailKey := range event.Details {
		detailKeys = append(detailKeys, detailKey)
	}
	sort.Strings(detailKeys)

	for _, detailKey := range detailKeys {
		if operation := classifyKeywords(detailKey); len(operation) > 0 {
			return operation
		}
	}
	if operation := classifyKeywords(event.EventName); len(operation) > 0 {
		return operation
	}
	for _, detailKey := range detailKeys {
		if operation := classifyKeywords(detailValueText(event.Details[detailKey])); len(operation) > 0 {
			return operation
		}
	}
	return operationOtherConstant
}

// detailValueText flattens a detail value into searchable text. Nested
// structures contribute their leaf strings.
func detailValueText(value any) string {
	switch typed := value.(type) {
	case string:
		return typed
	case []any:
		combined := ""
		for _, item := range typed {
			combined += " " + detailValueText(item)
		}
		return combined
	case map[string]any:
		nestedKeys := make([]string, 0, len(typed))
		for nestedKey := range typed {
			nestedKeys = append(nestedKeys, nestedKey)
		}
		sort.Strings(nestedKeys)
		combined := ""
		for _, nestedKey := range nestedKeys {
			combined += " " + detailValueText(typed[nestedKey])
		}
		return combined
	default:
		return ""
	}
}
