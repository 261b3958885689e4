package store

import "fmt"

// NoTrack marks statements issued by the store itself. The tracker skips any
// statement containing it.
const NoTrack = "/*NOTRACK*/"

// createSchemaSQL returns the DDL for the schema and table named by tbl.
func createSchemaSQL(schema, tbl string) []string {
	return []string{
		fmt.Sprintf(`%s
CREATE SCHEMA IF NOT EXISTS %s`, NoTrack, schema),
		fmt.Sprintf(`%s
CREATE TABLE IF NOT EXISTS %s (
    db_name          TEXT NOT NULL,
    table_name       TEXT NOT NULL,
    version          INTEGER NOT NULL,
    date_created     TIMESTAMP NOT NULL,
    date_updated     TIMESTAMP NOT NULL,
    schema_snapshot  TEXT NOT NULL DEFAULT '',
    schema_sql       TEXT NOT NULL DEFAULT '',
    data_sql         TEXT NOT NULL DEFAULT '',
    tracking         TEXT NOT NULL DEFAULT '',
    tracking_active  INTEGER NOT NULL DEFAULT 1,
    PRIMARY KEY (db_name, table_name, version)
)`, NoTrack, tbl),
	}
}
