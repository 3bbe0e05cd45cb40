package graph

import (
	"regexp"
	"sort"
	"strings"

	"github.com/ayounce80/sfmc-inv2/internal/inventory"
)

var (
	sqlFromPattern = regexp.MustCompile(`(?i)\bFROM\s+\[?([^\s\[\],]+)\]?`)
	sqlJoinPattern = regexp.MustCompile(`(?i)\bJOIN\s+\[?([^\s\[\],]+)\]?`)

	sharedPrefixes       = []string{"ENT.", "_ENT.", "Shared_", "Enterprise_"}
	sharedFolderKeywords = []string{"shared", "enterprise", "parent", "global"}

	systemTables = map[string]bool{
		"dual":                 true,
		"subscribers":          true,
		"subscriberattributes": true,
	}
)

// AnalyzeSQL finds the data extensions a query reads from its FROM and JOIN
// clauses and adds a query_reads_de edge for each match. Targets are recorded
// by name. System tables are ignored. The distinct names are returned sorted.
func (b *Builder) AnalyzeSQL(sql, sourceID, sourceName, sourceAccountID string) ([]string, error) {
	seen := make(map[string]bool)

	for _, pattern := range []*regexp.Regexp{sqlFromPattern, sqlJoinPattern} {
		for _, m := range pattern.FindAllStringSubmatch(sql, -1) {
			name := strings.TrimSpace(m[1])
			if name == "" || isSystemTable(name) {
				continue
			}
			seen[name] = true

			md := map[string]any{inventory.MetaResolvedByName: true}
			if IsSharedName(name) {
				md[inventory.MetaIsShared] = true
				md[inventory.MetaFromParentBU] = true
			}
			if sourceAccountID != "" {
				md[inventory.MetaAccountID] = sourceAccountID
			}

			err := b.AddEdge(inventory.Edge{
				SourceID:   sourceID,
				SourceType: "query",
				SourceName: sourceName,
				TargetID:   name,
				TargetType: "data_extension",
				TargetName: name,
				Type:       inventory.QueryReadsDE,
				Metadata:   md,
			})
			if err != nil {
				return nil, err
			}
		}
	}

	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func isSystemTable(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasPrefix(lower, "_") || strings.HasPrefix(lower, "sys") || systemTables[lower]
}

// IsSharedName reports whether a name follows an enterprise naming convention.
func IsSharedName(name string) bool {
	for _, p := range sharedPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// IsSharedItem reports whether an item looks inherited from the parent
// account: flagged by the cache layer, named with a shared prefix, or filed
// under a shared-looking folder.
func IsSharedItem(it inventory.Item) bool {
	if it.FromParentAccount {
		return true
	}
	if IsSharedName(it.Name) {
		return true
	}
	path := strings.ToLower(it.FolderPath)
	for _, kw := range sharedFolderKeywords {
		if path != "" && strings.Contains(path, kw) {
			return true
		}
	}
	return false
}
