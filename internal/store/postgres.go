package store

import (
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
)

// Postgres is the server target; its DSN is a libpq URL or keyword string.
const Postgres = "postgres"

func init() {
	Register(&Dialect{
		Name:      Postgres,
		Driver:    "pgx",
		Goose:     "postgres",
		TextType:  "TEXT",
		FloatType: "DOUBLE PRECISION",
		Memory:    func(string) bool { return false },
		DSN:       func(location string) string { return location },
		Numbered:  true,
	})
}
