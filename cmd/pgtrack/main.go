// Command pgtrack executes SQL against PostgreSQL and records the statements
// that touch tracked tables in versioned logs.
package main

import "github.com/aqasim81/pgtrack/internal/cli"

func main() {
	cli.Execute()
}
