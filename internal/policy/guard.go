package policy

import (
	"fmt"
	"regexp"
	"strconv"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// Validate proves a predicate satisfies the upstream engine's constraints:
// it parses as a boolean expression, carries at most one top-level subquery,
// uses only bare column names, and its placeholders match Params exactly.
// The whitelist tests run it over every table; the handler runs it per
// request in dev mode.
func Validate(p Predicate) error {
	if err := checkPlaceholders(p); err != nil {
		return err
	}

	result, err := pg_query.Parse("SELECT 1 FROM guard_relation WHERE " + p.Where)
	if err != nil {
		return fmt.Errorf("predicate does not parse: %w", err)
	}
	where := result.Stmts[0].Stmt.GetSelectStmt().GetWhereClause()

	if n := countTopLevelSublinks(where); n > 1 {
		return fmt.Errorf("predicate has %d top-level subqueries, upstream allows at most one", n)
	}
	if col := firstQualifiedColumn(where); col != "" {
		return fmt.Errorf("predicate references qualified column %q, upstream requires bare names", col)
	}
	return nil
}

var placeholderPattern = regexp.MustCompile(`\$(\d+)`)

func checkPlaceholders(p Predicate) error {
	seen := make(map[int]bool)
	for _, match := range placeholderPattern.FindAllStringSubmatch(p.Where, -1) {
		n, err := strconv.Atoi(match[1])
		if err != nil || n < 1 {
			return fmt.Errorf("invalid placeholder %q", match[0])
		}
		if n > len(p.Params) {
			return fmt.Errorf("placeholder $%d exceeds %d params", n, len(p.Params))
		}
		seen[n] = true
	}
	for i := 1; i <= len(p.Params); i++ {
		if !seen[i] {
			return fmt.Errorf("param %d has no matching placeholder", i)
		}
	}
	return nil
}

// countTopLevelSublinks counts subquery expressions without descending into
// them: a subquery nested inside another sublink executes as part of its
// parent and does not consume the upstream planner's budget.
func countTopLevelSublinks(node *pg_query.Node) int {
	if node == nil {
		return 0
	}
	if node.GetSubLink() != nil {
		return 1
	}
	count := 0
	if boolExpr := node.GetBoolExpr(); boolExpr != nil {
		for _, arg := range boolExpr.Args {
			count += countTopLevelSublinks(arg)
		}
	}
	if aExpr := node.GetAExpr(); aExpr != nil {
		count += countTopLevelSublinks(aExpr.Lexpr)
		count += countTopLevelSublinks(aExpr.Rexpr)
	}
	if nullTest := node.GetNullTest(); nullTest != nil {
		count += countTopLevelSublinks(nullTest.Arg)
	}
	if list := node.GetList(); list != nil {
		for _, item := range list.Items {
			count += countTopLevelSublinks(item)
		}
	}
	return count
}

// firstQualifiedColumn walks the whole expression, subqueries included, and
// returns the first multi-part column reference it finds.
func firstQualifiedColumn(node *pg_query.Node) string {
	if node == nil {
		return ""
	}
	if columnRef := node.GetColumnRef(); columnRef != nil {
		if len(columnRef.Fields) > 1 {
			name := ""
			for i, field := range columnRef.Fields {
				if i > 0 {
					name += "."
				}
				if str := field.GetString_(); str != nil {
					name += str.Sval
				}
			}
			return name
		}
		return ""
	}

	var children []*pg_query.Node
	switch {
	case node.GetBoolExpr() != nil:
		children = node.GetBoolExpr().Args
	case node.GetAExpr() != nil:
		children = []*pg_query.Node{node.GetAExpr().Lexpr, node.GetAExpr().Rexpr}
	case node.GetNullTest() != nil:
		children = []*pg_query.Node{node.GetNullTest().Arg}
	case node.GetList() != nil:
		children = node.GetList().Items
	case node.GetSubLink() != nil:
		children = []*pg_query.Node{node.GetSubLink().Testexpr, node.GetSubLink().Subselect}
	case node.GetSelectStmt() != nil:
		sel := node.GetSelectStmt()
		children = append(children, sel.TargetList...)
		children = append(children, sel.WhereClause)
	case node.GetResTarget() != nil:
		children = []*pg_query.Node{node.GetResTarget().Val}
	}
	for _, child := range children {
		if name := firstQualifiedColumn(child); name != "" {
			return name
		}
	}
	return ""
}
