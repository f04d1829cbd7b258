package storagewriter

import (
	"errors"
	"fmt"
)

// ErrInvalidDatabase is returned when a storage writing database name is not
// one of the supported values.
var ErrInvalidDatabase = errors.New("invalid storage writing database")

// Database selects the medium storage diffs are persisted to.
type Database int

const (
	// Csv appends rows to a file under the data directory.
	Csv Database = iota
	// None discards everything.
	None
	// Postgres inserts rows into a table.
	Postgres
)

// ParseDatabase maps the canonical (case-sensitive) names "csv", "none" and
// "postgres" to their Database value.
func ParseDatabase(s string) (Database, error) {
	switch s {
	case "csv":
		return Csv, nil
	case "none":
		return None, nil
	case "postgres":
		return Postgres, nil
	default:
		return None, fmt.Errorf("%w: %s", ErrInvalidDatabase, s)
	}
}

// String returns the canonical name accepted by ParseDatabase.
func (d Database) String() string {
	switch d {
	case Csv:
		return "csv"
	case None:
		return "none"
	case Postgres:
		return "postgres"
	default:
		return fmt.Sprintf("database(%d)", int(d))
	}
}

// AllDatabases returns every supported database, once each.
func AllDatabases() []Database {
	return []Database{Csv, None, Postgres}
}

// UnmarshalYAML lets the database be written by name in the config file.
func (d *Database) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := ParseDatabase(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MarshalYAML writes the canonical name.
func (d Database) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}
