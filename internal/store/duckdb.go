package store

import (
	_ "github.com/marcboeker/go-duckdb" // duckdb driver
)

// DuckDB is the analytical single-file target.
const DuckDB = "duckdb"

func init() {
	Register(&Dialect{
		Name:      DuckDB,
		Driver:    "duckdb",
		TextType:  "VARCHAR",
		FloatType: "DOUBLE",
		Memory:    isMemoryPath,
		DSN: func(location string) string {
			if location == ":memory:" {
				return ""
			}
			return location
		},
	})
}
