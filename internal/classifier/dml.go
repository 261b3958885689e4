package classifier

import pg_query "github.com/pganalyze/pg_query_go/v6"

func classifyDML(identifier string, rv *pg_query.RangeVar) (Classified, bool) {
	return table(DML, identifier, rv)
}

// classifyTruncate tracks the first truncated relation.
func classifyTruncate(stmt *pg_query.TruncateStmt) (Classified, bool) {
	for _, rel := range stmt.GetRelations() {
		rv, ok := rel.GetNode().(*pg_query.Node_RangeVar)
		if !ok {
			continue
		}

		return classifyDML(Truncate, rv.RangeVar)
	}

	return Classified{}, false
}
