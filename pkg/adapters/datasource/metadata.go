package datasource

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// TableEntry is a table as listed by a CatalogReader.
type TableEntry struct {
	SchemaName string
	TableName  string
	Readable   bool
	Tags       []string
}

// ColumnEntry is a column as listed by a CatalogReader.
type ColumnEntry struct {
	ColumnName      string
	DataType        string
	IsNullable      bool
	OrdinalPosition int
	Tags            []string
}

// TagLevel is the catalog level a tag filter applies to.
type TagLevel string

const (
	TagLevelCatalog  TagLevel = "catalog"
	TagLevelDatabase TagLevel = "database"
	TagLevelTable    TagLevel = "table"
	TagLevelColumn   TagLevel = "column"
)

// ParseTagLevel validates a tag level name.
func ParseTagLevel(s string) (TagLevel, error) {
	switch TagLevel(strings.ToLower(strings.TrimSpace(s))) {
	case TagLevelCatalog:
		return TagLevelCatalog, nil
	case TagLevelDatabase, "schema":
		return TagLevelDatabase, nil
	case TagLevelTable:
		return TagLevelTable, nil
	case TagLevelColumn:
		return TagLevelColumn, nil
	default:
		return "", fmt.Errorf("unknown tag level %q (want catalog, database, table or column)", s)
	}
}

// TaggedObject is an object carrying a matching tag. Fields below the object's
// level are empty: a tagged schema has no Table, a tagged table no Column.
type TaggedObject struct {
	SchemaName string
	TableName  string
	ColumnName string
	Tags       []string
}

var tagPattern = regexp.MustCompile(`#([A-Za-z0-9_][A-Za-z0-9_.:-]*)`)

// ParseTags extracts #tag tokens from an object comment or description.
// Tags are lowercased, deduplicated and sorted.
func ParseTags(comment string) []string {
	matches := tagPattern.FindAllStringSubmatch(comment, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	var tags []string
	for _, m := range matches {
		tag := strings.ToLower(m[1])
		if !seen[tag] {
			seen[tag] = true
			tags = append(tags, tag)
		}
	}
	sort.Strings(tags)
	return tags
}

// HasAnyTag reports whether have contains at least one of want (case-insensitive).
func HasAnyTag(have, want []string) bool {
	for _, w := range want {
		w = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(w), "#"))
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}
