package main

import (
	"database/sql"
	"fmt"
)

// DBAdapter defines the contract for database-specific behavior.
// Each supported database (MySQL, PostgreSQL, SQLite) implements this interface.
type DBAdapter interface {
	// DriverName returns the database/sql driver name (e.g., "mysql", "postgres", "sqlite").
	DriverName() string

	// URIScheme returns the resource URI scheme (e.g., "mysql", "postgres", "sqlite").
	URIScheme() string

	// Matches reports whether an endpoint descriptor belongs to this database.
	Matches(endpoint string) bool

	// DriverDSN turns an endpoint descriptor into the DSN handed to sql.Open.
	DriverDSN(endpoint string) (string, error)

	// BuildDSN constructs an endpoint from environment variables. ok is false
	// when none of the adapter's variables are set.
	BuildDSN(lookup func(string) (string, bool)) (dsn string, ok bool, err error)

	// DatabaseName extracts the database/file name from an endpoint descriptor.
	DatabaseName(endpoint string) string

	// MaskDSN returns the endpoint with every credential replaced.
	MaskDSN(endpoint string) string

	// BeginReadOnly returns the statement that opens a read-only transaction.
	BeginReadOnly() string

	// ListTablesQuery returns the SQL query and arguments to list all tables.
	ListTablesQuery(databaseName string) (string, []any)

	// ReadSchemaQuery returns the SQL query and arguments to read column info for a table.
	ReadSchemaQuery(databaseName, tableName string) (string, []any)

	// ScanSchemaRow scans a single row from the schema query result into a column map.
	ScanSchemaRow(rows *sql.Rows) (map[string]any, error)

	// RemoveStringsAndComments strips string literals and comments from SQL
	// for safe keyword detection.
	RemoveStringsAndComments(sql string) string
}

// adapters is ordered: the SQLite matcher accepts bare file paths, so it goes last.
var adapters = []DBAdapter{
	&PostgresAdapter{},
	&MySQLAdapter{},
	&SQLiteAdapter{},
}

func adapterFor(endpoint string) (DBAdapter, error) {
	for _, a := range adapters {
		if a.Matches(endpoint) {
			return a, nil
		}
	}
	return nil, &ConfigError{
		Key:    "endpoint",
		Reason: fmt.Sprintf("unrecognized database endpoint %q", maskUnknown(endpoint)),
	}
}

// maskUnknown hides everything between the scheme and the host of an
// endpoint no adapter understood.
func maskUnknown(endpoint string) string {
	for i := len(endpoint) - 1; i >= 0; i-- {
		if endpoint[i] == '@' {
			return "****" + endpoint[i:]
		}
	}
	return endpoint
}

const maskedSecret = "****"

// requireEnv reads keys through lookup. It reports ok=false when none of the
// keys are set and an error when only some of them are.
func requireEnv(lookup func(string) (string, bool), keys []string) (map[string]string, bool, error) {
	values := make(map[string]string, len(keys))
	var missing []string
	for _, k := range keys {
		v, _ := lookup(k)
		if v == "" {
			missing = append(missing, k)
			continue
		}
		values[k] = v
	}

	if len(values) == 0 {
		return nil, false, nil
	}
	if len(missing) > 0 {
		return nil, true, &ConfigError{
			Key:    missing[0],
			Reason: fmt.Sprintf("missing required environment variables: %v", missing),
		}
	}
	return values, true, nil
}
