package classifier

import pg_query "github.com/pganalyze/pg_query_go/v6"

func classifyCreateTable(stmt *pg_query.CreateStmt) (Classified, bool) {
	return table(DDL, CreateTable, stmt.GetRelation())
}

func classifyCreateTableAs(stmt *pg_query.CreateTableAsStmt) (Classified, bool) {
	rel := stmt.GetInto().GetRel()

	switch stmt.GetObjtype() {
	case pg_query.ObjectType_OBJECT_TABLE:
		return table(DDL, CreateTable, rel)
	case pg_query.ObjectType_OBJECT_MATVIEW:
		return table(DDL, CreateView, rel)
	default:
		return Classified{}, false
	}
}

func classifyCreateView(stmt *pg_query.ViewStmt) (Classified, bool) {
	return table(DDL, CreateView, stmt.GetView())
}

func classifyCreateDatabase(stmt *pg_query.CreatedbStmt) (Classified, bool) {
	return database(CreateDatabase, stmt.GetDbname())
}

// classifyCreateIndex covers plain and UNIQUE indexes; the indexed table is
// the statement's relation.
func classifyCreateIndex(stmt *pg_query.IndexStmt) (Classified, bool) {
	return table(DDL, CreateIndex, stmt.GetRelation())
}

func classifyAlterTable(stmt *pg_query.AlterTableStmt) (Classified, bool) {
	switch stmt.GetObjtype() {
	case pg_query.ObjectType_OBJECT_TABLE:
		return table(DDL, AlterTable, stmt.GetRelation())
	case pg_query.ObjectType_OBJECT_VIEW, pg_query.ObjectType_OBJECT_MATVIEW:
		return table(DDL, AlterView, stmt.GetRelation())
	default:
		return Classified{}, false
	}
}

func classifyAlterDatabase(name string) (Classified, bool) {
	return database(AlterDatabase, name)
}

// classifyDrop looks at the first dropped object only.
func classifyDrop(stmt *pg_query.DropStmt) (Classified, bool) {
	var identifier string

	switch stmt.GetRemoveType() {
	case pg_query.ObjectType_OBJECT_TABLE:
		identifier = DropTable
	case pg_query.ObjectType_OBJECT_VIEW, pg_query.ObjectType_OBJECT_MATVIEW:
		identifier = DropView
	default:
		return Classified{}, false
	}

	name := firstObjectName(stmt.GetObjects())
	if name == "" {
		return Classified{}, false
	}

	return Classified{Kind: DDL, Identifier: identifier, Table: name}, true
}

// classifyDropIndex needs the table from the MySQL "ON table" clause;
// PostgreSQL's own DROP INDEX names only the index.
func classifyDropIndex(table string) (Classified, bool) {
	if table == "" {
		return Classified{}, false
	}

	return Classified{Kind: DDL, Identifier: DropIndex, Table: table}, true
}

func classifyDropDatabase(stmt *pg_query.DropdbStmt) (Classified, bool) {
	return database(DropDatabase, stmt.GetDbname())
}

// classifyRename maps PostgreSQL's RenameStmt: renaming a relation is
// RENAME TABLE, renaming one of its columns or constraints is an ALTER.
func classifyRename(stmt *pg_query.RenameStmt) (Classified, bool) {
	switch stmt.GetRenameType() {
	case pg_query.ObjectType_OBJECT_TABLE, pg_query.ObjectType_OBJECT_VIEW, pg_query.ObjectType_OBJECT_MATVIEW:
		c, ok := table(DDL, RenameTable, stmt.GetRelation())
		if !ok || stmt.GetNewname() == "" {
			return Classified{}, false
		}

		c.RenameTo = stmt.GetNewname()

		return c, true
	case pg_query.ObjectType_OBJECT_COLUMN, pg_query.ObjectType_OBJECT_TABCONSTRAINT:
		identifier := AlterTable
		if stmt.GetRelationType() == pg_query.ObjectType_OBJECT_VIEW ||
			stmt.GetRelationType() == pg_query.ObjectType_OBJECT_MATVIEW {
			identifier = AlterView
		}

		return table(DDL, identifier, stmt.GetRelation())
	case pg_query.ObjectType_OBJECT_DATABASE:
		return database(AlterDatabase, stmt.GetSubname())
	default:
		return Classified{}, false
	}
}

// firstObjectName returns the unqualified name of the first object in a
// DROP object list.
func firstObjectName(objects []*pg_query.Node) string {
	if len(objects) == 0 {
		return ""
	}

	list, ok := objects[0].GetNode().(*pg_query.Node_List)
	if !ok || list.List == nil || len(list.List.Items) == 0 {
		return ""
	}

	last := list.List.Items[len(list.List.Items)-1]

	s, ok := last.GetNode().(*pg_query.Node_String_)
	if !ok || s.String_ == nil {
		return ""
	}

	return s.String_.Sval
}
