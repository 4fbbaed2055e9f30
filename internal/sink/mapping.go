package sink

import (
	_ "embed"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

//go:embed default_mappings.yaml
var defaultMappingsYAML []byte

const (
	parseMappingsErrorTemplateConstant   = "parse mapping document: %w"
	emptyMappingsErrorMessageConstant    = "mapping document declares no mappings"
	missingSourceErrorTemplateConstant   = "mapping %d: source file is required"
	missingTableErrorTemplateConstant    = "mapping for %s: target table is required"
	missingColumnsErrorTemplateConstant  = "mapping for %s: at least one column is required"
	ambiguousColumnErrorTemplateConstant = "column %s of table %s: exactly one of from, object, or tags is required"
)

// Document declares how CSV snapshots map onto warehouse tables.
type Document struct {
	Mappings []Mapping `yaml:"mappings"`
}

// Mapping routes one source CSV file into one target table.
type Mapping struct {
	Source  string         `yaml:"source"`
	Table   string         `yaml:"table"`
	Columns []ColumnMapping `yaml:"columns"`
}

// ColumnMapping derives one target column. Exactly one of From, Object, or
// Tags must be set: From copies a CSV column, Object assembles a JSON object
// from named CSV columns, and Tags derives a JSON list from a comparison.
// Nullable columns bind NULL when the source value is empty.
type ColumnMapping struct {
	Target   string            `yaml:"target"`
	From     string            `yaml:"from,omitempty"`
	Object   map[string]string `yaml:"object,omitempty"`
	Tags     *TagRule          `yaml:"tags,omitempty"`
	Nullable bool              `yaml:"nullable,omitempty"`
}

// TagRule derives a tag list by comparing a CSV column against a literal.
type TagRule struct {
	From      string   `yaml:"from"`
	Equals    string   `yaml:"equals"`
	Match     []string `yaml:"match"`
	Otherwise []string `yaml:"otherwise"`
}

// DefaultDocument returns the embedded mapping document.
func DefaultDocument() Document {
	document, parseError := ParseDocument(defaultMappingsYAML)
	if parseError != nil {
		panic(parseError)
	}
	return document
}

// ParseDocument decodes and validates a mapping document.
func ParseDocument(payload []byte) (Document, error) {
	var document Document
	if decodeError := yaml.Unmarshal(payload, &document); decodeError != nil {
		return Document{}, fmt.Errorf(parseMappingsErrorTemplateConstant, decodeError)
	}
	if len(document.Mappings) == 0 {
		return Document{}, fmt.Errorf(emptyMappingsErrorMessageConstant)
	}
	for mappingIndex, mapping := range document.Mappings {
		if len(strings.TrimSpace(mapping.Source)) == 0 {
			return Document{}, fmt.Errorf(missingSourceErrorTemplateConstant, mappingIndex)
		}
		if len(strings.TrimSpace(mapping.Table)) == 0 {
			return Document{}, fmt.Errorf(missingTableErrorTemplateConstant, mapping.Source)
		}
		if len(mapping.Columns) == 0 {
			return Document{}, fmt.Errorf(missingColumnsErrorTemplateConstant, mapping.Source)
		}
		for _, column := range mapping.Columns {
			ruleCount := 0
			if len(column.From) > 0 {
				ruleCount++
			}
			if len(column.Object) > 0 {
				ruleCount++
			}
			if column.Tags != nil {
				ruleCount++
			}
			if ruleCount != 1 {
				return Document{}, fmt.Errorf(ambiguousColumnErrorTemplateConstant, column.Target, mapping.Table)
			}
		}
	}
	return document, nil
}

// transformRow derives the bind values for one CSV row. Values come back in
// column declaration order, with composite values rendered as JSON.
func transformRow(row map[string]string, mapping Mapping) ([]string, []any, error) {
	columnNames := make([]string, 0, len(mapping.Columns))
	bindValues := make([]any, 0, len(mapping.Columns))
	for _, column := range mapping.Columns {
		columnNames = append(columnNames, column.Target)

		var derived any
		switch {
		case len(column.From) > 0:
			derived = coerceValue(row[column.From])
		case len(column.Object) > 0:
			derived = assembleObject(row, column.Object)
		case column.Tags != nil:
			derived = deriveTags(row, *column.Tags)
		}

		if column.Nullable && isEmptyValue(derived) {
			bindValues = append(bindValues, nil)
			continue
		}
		bindValue, bindError := renderBindValue(derived)
		if bindError != nil {
			return nil, nil, bindError
		}
		bindValues = append(bindValues, bindValue)
	}
	return columnNames, bindValues, nil
}

// coerceValue narrows a CSV cell into a typed bind value. Unsigned digit
// strings become integers, bracketed strings become lists, and braced
// strings parse as JSON objects when they can.
func coerceValue(value string) any {
	if len(value) == 0 {
		return value
	}
	if isDigits(value) {
		parsed, parseError := strconv.ParseInt(value, 10, 64)
		if parseError == nil {
			return parsed
		}
		return value
	}
	if strings.HasPrefix(value, "[") && strings.HasSuffix(value, "]") {
		inner := value[1 : len(value)-1]
		if len(strings.TrimSpace(inner)) == 0 {
			return []string{}
		}
		parts := strings.Split(inner, ",")
		items := make([]string, 0, len(parts))
		for _, part := range parts {
			items = append(items, strings.TrimSpace(part))
		}
		return items
	}
	if strings.HasPrefix(value, "{") && strings.HasSuffix(value, "}") {
		var parsed map[string]any
		if decodeError := json.Unmarshal([]byte(value), &parsed); decodeError == nil {
			return parsed
		}
	}
	return value
}

func assembleObject(row map[string]string, fields map[string]string) map[string]string {
	assembled := make(map[string]string, len(fields))
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		assembled[key] = row[fields[key]]
	}
	return assembled
}

func deriveTags(row map[string]string, rule TagRule) []string {
	if row[rule.From] == rule.Equals {
		return rule.Match
	}
	return rule.Otherwise
}

// renderBindValue flattens composite values into JSON text so the driver
// binds them as strings.
func renderBindValue(value any) (any, error) {
	switch value.(type) {
	case []string, map[string]any, map[string]string:
		encoded, encodeError := json.Marshal(value)
		if encodeError != nil {
			return nil, encodeError
		}
		return string(encoded), nil
	default:
		return value, nil
	}
}

func isEmptyValue(value any) bool {
	text, isText := value.(string)
	return isText && len(text) == 0
}

func isDigits(value string) bool {
	for _, character := range value {
		if character < '0' || character > '9' {
			return false
		}
	}
	return len(value) > 0
}

