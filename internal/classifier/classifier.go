// Package classifier reduces a parsed SQL statement to the shape the change
// tracker cares about: whether it changes structure or data, which statement
// identifier it carries, and which table it targets.
package classifier

import (
	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/aqasim81/pgtrack/internal/parser"
)

// Kind separates data-definition from data-manipulation statements.
type Kind string

// Statement kinds.
const (
	DDL Kind = "DDL"
	DML Kind = "DML"
)

// Statement identifiers emitted by Classify.
const (
	CreateTable    = "CREATE TABLE"
	CreateView     = "CREATE VIEW"
	CreateIndex    = "CREATE INDEX"
	CreateDatabase = "CREATE DATABASE"
	AlterTable     = "ALTER TABLE"
	AlterView      = "ALTER VIEW"
	AlterDatabase  = "ALTER DATABASE"
	DropTable      = "DROP TABLE"
	DropView       = "DROP VIEW"
	DropIndex      = "DROP INDEX"
	DropDatabase   = "DROP DATABASE"
	RenameTable    = "RENAME TABLE"
	Insert         = "INSERT"
	Update         = "UPDATE"
	Delete         = "DELETE"
	Truncate       = "TRUNCATE"
)

// Identifiers lists every identifier Classify can produce.
func Identifiers() []string {
	return []string{
		CreateTable, AlterTable, DropTable, RenameTable,
		CreateIndex, DropIndex,
		Insert, Update, Delete, Truncate,
		CreateView, AlterView, DropView,
		CreateDatabase, AlterDatabase, DropDatabase,
	}
}

// DatabaseIdentifiers is the statement set tracked by database-level versions.
func DatabaseIdentifiers() []string {
	return []string{CreateDatabase, AlterDatabase, DropDatabase}
}

// Classified is the tracking-relevant shape of one statement.
type Classified struct {
	Kind       Kind
	Identifier string
	// Table is empty for database-level statements.
	Table string
	// RenameTo is the new table name of a RENAME TABLE.
	RenameTo string
	// Database is set by CREATE/ALTER/DROP DATABASE; the caller must make it
	// the current database.
	Database string
}

// IsRename reports whether the statement renames its table.
func (c Classified) IsRename() bool {
	return c.Identifier == RenameTable
}

// Classify inspects the first statement of a parse result. The boolean is
// false for statements the tracker does not handle, or whose target table
// cannot be determined.
func Classify(res *parser.ParseResult) (Classified, bool) {
	if res == nil || len(res.Stmts) == 0 || res.Stmts[0].Stmt == nil {
		return Classified{}, false
	}

	node := res.Stmts[0].Stmt

	var (
		c  Classified
		ok bool
	)

	if drop := node.GetDropStmt(); drop != nil && drop.GetRemoveType() == pg_query.ObjectType_OBJECT_INDEX {
		c, ok = classifyDropIndex(res.IndexTable(0))
	} else {
		c, ok = classifyNode(node)
	}

	if !ok || c.Identifier == "" {
		return Classified{}, false
	}

	return c, true
}

func classifyNode(node *pg_query.Node) (Classified, bool) {
	switch n := node.Node.(type) {
	case *pg_query.Node_CreateStmt:
		return classifyCreateTable(n.CreateStmt)
	case *pg_query.Node_CreateTableAsStmt:
		return classifyCreateTableAs(n.CreateTableAsStmt)
	case *pg_query.Node_ViewStmt:
		return classifyCreateView(n.ViewStmt)
	case *pg_query.Node_CreatedbStmt:
		return classifyCreateDatabase(n.CreatedbStmt)
	case *pg_query.Node_IndexStmt:
		return classifyCreateIndex(n.IndexStmt)
	case *pg_query.Node_AlterTableStmt:
		return classifyAlterTable(n.AlterTableStmt)
	case *pg_query.Node_AlterDatabaseStmt:
		return classifyAlterDatabase(n.AlterDatabaseStmt.GetDbname())
	case *pg_query.Node_AlterDatabaseSetStmt:
		return classifyAlterDatabase(n.AlterDatabaseSetStmt.GetDbname())
	case *pg_query.Node_DropStmt:
		return classifyDrop(n.DropStmt)
	case *pg_query.Node_DropdbStmt:
		return classifyDropDatabase(n.DropdbStmt)
	case *pg_query.Node_RenameStmt:
		return classifyRename(n.RenameStmt)
	case *pg_query.Node_UpdateStmt:
		return classifyDML(Update, n.UpdateStmt.GetRelation())
	case *pg_query.Node_InsertStmt:
		return classifyDML(Insert, n.InsertStmt.GetRelation())
	case *pg_query.Node_DeleteStmt:
		return classifyDML(Delete, n.DeleteStmt.GetRelation())
	case *pg_query.Node_TruncateStmt:
		return classifyTruncate(n.TruncateStmt)
	default:
		return Classified{}, false
	}
}

func relname(rv *pg_query.RangeVar) (string, bool) {
	if rv == nil || rv.Relname == "" {
		return "", false
	}

	return rv.Relname, true
}

func table(kind Kind, identifier string, rv *pg_query.RangeVar) (Classified, bool) {
	name, ok := relname(rv)
	if !ok {
		return Classified{}, false
	}

	return Classified{Kind: kind, Identifier: identifier, Table: name}, true
}

func database(identifier, name string) (Classified, bool) {
	if name == "" {
		return Classified{}, false
	}

	return Classified{Kind: DDL, Identifier: identifier, Database: name}, true
}
