package catalog

import (
	"fmt"
	"regexp"
	"strings"
)

// clausePattern matches one kind clause: kind=="mesh", spaces allowed
// around the operator.
var clausePattern = regexp.MustCompile(`^kind\s*==\s*"([^"]+)"$`)

// ParseExpr parses the content kind expression grammar: one or more
// `kind=="<value>"` clauses joined by OR. An empty expression matches every
// kind; anything outside the grammar is an error.
func ParseExpr(expr string) ([]string, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}

	var kinds []string
	for _, clause := range strings.Split(expr, " OR ") {
		m := clausePattern.FindStringSubmatch(strings.TrimSpace(clause))
		if m == nil {
			return nil, fmt.Errorf("unsupported expr clause %q", clause)
		}
		kinds = append(kinds, m[1])
	}
	return kinds, nil
}
