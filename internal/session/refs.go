package session

import (
	"regexp"
	"sync"

	"github.com/icequery/icequery/internal/warehouse"
)

// Reference is one catalog-qualified table or history mention found in SQL
// text. User SQL is trusted verbatim; references are located lexically, which
// is sufficient because catalog names are chosen by the same operator who
// writes the query.
type Reference struct {
	Table   warehouse.TableRef
	History bool
}

var (
	refPatternMu sync.Mutex
	refPatterns  = map[string]*regexp.Regexp{}
)

func referencePattern(catalog string) *regexp.Regexp {
	refPatternMu.Lock()
	defer refPatternMu.Unlock()
	if pattern, ok := refPatterns[catalog]; ok {
		return pattern
	}
	pattern := regexp.MustCompile(`\b` + regexp.QuoteMeta(catalog) + `\.([A-Za-z_][A-Za-z0-9_]*)\.([A-Za-z_][A-Za-z0-9_]*)(\.history)?\b`)
	refPatterns[catalog] = pattern
	return pattern
}

func scanReferences(catalog, sqlText string) []Reference {
	matches := referencePattern(catalog).FindAllStringSubmatch(sqlText, -1)
	refs := make([]Reference, 0, len(matches))
	seen := map[string]bool{}
	for _, match := range matches {
		ref := Reference{
			Table:   warehouse.TableRef{Catalog: catalog, Database: match[1], Table: match[2]},
			History: match[3] != "",
		}
		name := ref.Table.String()
		if ref.History {
			name = ref.Table.HistoryName()
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		refs = append(refs, ref)
	}
	return refs
}

// rewriteReferences replaces every catalog-qualified reference with a quoted
// identifier so the bound DuckDB relation of the same name is used.
func rewriteReferences(catalog, sqlText string) string {
	return referencePattern(catalog).ReplaceAllStringFunc(sqlText, func(match string) string {
		return quoteIdent(match)
	})
}
