package gateway

import (
	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/aqasim81/pgtrack/internal/parser"
)

// requiresAutocommit returns true if any statement cannot run inside a
// transaction block.
func requiresAutocommit(res *parser.ParseResult) bool {
	for _, stmt := range res.Stmts {
		if stmt.GetStmt() == nil {
			continue
		}

		switch n := stmt.GetStmt().GetNode().(type) {
		case *pg_query.Node_CreatedbStmt, *pg_query.Node_DropdbStmt, *pg_query.Node_VacuumStmt:
			return true
		case *pg_query.Node_IndexStmt:
			if n.IndexStmt != nil && n.IndexStmt.GetConcurrent() {
				return true
			}
		}
	}

	return false
}
