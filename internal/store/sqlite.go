package store

import (
	"strings"

	_ "modernc.org/sqlite" // SQLite driver (pure Go)
)

// SQLite is the default, single-file target.
const SQLite = "sqlite"

func init() {
	Register(&Dialect{
		Name:      SQLite,
		Driver:    "sqlite",
		Goose:     "sqlite3",
		TextType:  "TEXT",
		FloatType: "REAL",
		Memory:    isMemoryPath,
		DSN:       sqliteDSN,
	})
}

func isMemoryPath(location string) bool {
	return location == "" || location == ":memory:"
}

// sqliteDSN enables foreign keys on every connection and waits on a busy
// database instead of failing.
func sqliteDSN(location string) string {
	const pragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if isMemoryPath(location) {
		return "file::memory:?" + pragmas
	}
	if strings.HasPrefix(location, "file:") {
		sep := "?"
		if strings.Contains(location, "?") {
			sep = "&"
		}
		return location + sep + pragmas
	}
	return "file:" + location + "?" + pragmas
}
