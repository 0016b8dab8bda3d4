package main

import (
	"database/sql"
	"fmt"
	"strings"
)

// SQLiteAdapter implements DBAdapter for SQLite databases.
type SQLiteAdapter struct{}

// sqliteBusyTimeout lets a reader wait for a parked writer's lock instead of failing immediately.
const sqliteBusyTimeout = "_pragma=busy_timeout(5000)"

func (a *SQLiteAdapter) DriverName() string { return "sqlite" }
func (a *SQLiteAdapter) URIScheme() string  { return "sqlite" }

// BeginReadOnly opens a plain deferred transaction. SQLite has no READ ONLY
// transaction mode; read transactions are always rolled back instead.
func (a *SQLiteAdapter) BeginReadOnly() string { return "BEGIN" }

func (a *SQLiteAdapter) Matches(endpoint string) bool {
	if strings.HasPrefix(endpoint, "sqlite:") || strings.HasPrefix(endpoint, "file:") {
		return true
	}
	path := endpoint
	if idx := strings.Index(path, "?"); idx != -1 {
		path = path[:idx]
	}
	for _, ext := range []string{".db", ".sqlite", ".sqlite3"} {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

func (a *SQLiteAdapter) DriverDSN(endpoint string) (string, error) {
	dsn := strings.TrimPrefix(strings.TrimPrefix(endpoint, "sqlite://"), "sqlite:")
	path := dsn
	if idx := strings.Index(path, "?"); idx != -1 {
		path = path[:idx]
	}
	if path == "" || path == "file:" {
		return "", &ConfigError{Key: "endpoint", Reason: "sqlite endpoint has no file path"}
	}
	if strings.Contains(dsn, "busy_timeout") {
		return dsn, nil
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&" + sqliteBusyTimeout, nil
	}
	return dsn + "?" + sqliteBusyTimeout, nil
}

func (a *SQLiteAdapter) BuildDSN(lookup func(string) (string, bool)) (string, bool, error) {
	dbPath, _ := lookup("MCP_SQLITE_PATH")
	if dbPath == "" {
		return "", false, nil
	}
	if !a.Matches(dbPath) {
		return "sqlite://" + dbPath, true, nil
	}
	return dbPath, true, nil
}

func (a *SQLiteAdapter) DatabaseName(endpoint string) string {
	// DSN is a file path, possibly with query parameters
	path := strings.TrimPrefix(strings.TrimPrefix(endpoint, "sqlite://"), "sqlite:")
	path = strings.TrimPrefix(path, "file:")
	if idx := strings.Index(path, "?"); idx != -1 {
		path = path[:idx]
	}
	// Extract just the filename without directory
	parts := strings.Split(path, "/")
	name := parts[len(parts)-1]
	// Remove common extensions for display
	name = strings.TrimSuffix(name, ".db")
	name = strings.TrimSuffix(name, ".sqlite")
	name = strings.TrimSuffix(name, ".sqlite3")
	return name
}

// MaskDSN returns the endpoint unchanged: SQLite paths carry no credentials.
func (a *SQLiteAdapter) MaskDSN(endpoint string) string { return endpoint }

func (a *SQLiteAdapter) ListTablesQuery(databaseName string) (string, []any) {
	// SQLite has no information_schema. Use sqlite_master.
	// databaseName is ignored (SQLite has one DB per file).
	return `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`,
		nil
}

func (a *SQLiteAdapter) ReadSchemaQuery(databaseName, tableName string) (string, []any) {
	// PRAGMA table_info cannot use ? placeholders, so we embed the table name safely.
	return fmt.Sprintf("PRAGMA table_info('%s')", strings.ReplaceAll(tableName, "'", "''")),
		nil
}

func (a *SQLiteAdapter) ScanSchemaRow(rows *sql.Rows) (map[string]any, error) {
	// PRAGMA table_info returns: cid, name, type, notnull, dflt_value, pk
	var cid int
	var name, colType string
	var notNull, pk int
	var dfltValue sql.NullString

	if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
		return nil, err
	}

	isNullable := "YES"
	if notNull == 1 {
		isNullable = "NO"
	}

	col := map[string]any{
		"column_name": name,
		"data_type":   colType,
		"is_nullable": isNullable,
	}
	if pk > 0 {
		col["column_key"] = "PRI"
	}
	if dfltValue.Valid {
		col["column_default"] = dfltValue.String
	}
	return col, nil
}

// RemoveStringsAndComments strips string literals and comments from SQL
// for safe keyword detection. SQLite-specific: no # comments, no backslash
// escaping, supports backtick and [bracket] identifiers.
func (a *SQLiteAdapter) RemoveStringsAndComments(sql string) string {
	var result strings.Builder
	i := 0
	n := len(sql)

	for i < n {
		// Single-line comment starting with --
		if i+1 < n && sql[i] == '-' && sql[i+1] == '-' {
			for i < n && sql[i] != '\n' {
				i++
			}
			result.WriteByte(' ')
			continue
		}

		// Multi-line comment /* */
		if i+1 < n && sql[i] == '/' && sql[i+1] == '*' {
			i += 2
			for i+1 < n && !(sql[i] == '*' && sql[i+1] == '/') {
				i++
			}
			i += 2 // Skip */
			result.WriteByte(' ')
			continue
		}

		// Single-quoted string (no backslash escaping in SQLite)
		if sql[i] == '\'' {
			i++
			for i < n {
				if sql[i] == '\'' {
					if i+1 < n && sql[i+1] == '\'' {
						i += 2 // Escaped quote ''
						continue
					}
					i++
					break
				}
				i++
			}
			result.WriteString("''") // Placeholder for string
			continue
		}

		// Double-quoted identifier/string
		if sql[i] == '"' {
			result.WriteByte('"')
			i++
			for i < n {
				if sql[i] == '"' {
					if i+1 < n && sql[i+1] == '"' {
						result.WriteString(`""`)
						i += 2
						continue
					}
					result.WriteByte('"')
					i++
					break
				}
				result.WriteByte(sql[i])
				i++
			}
			continue
		}

		// Backtick-quoted identifier (SQLite compatibility)
		if sql[i] == '`' {
			result.WriteByte('`')
			i++
			for i < n && sql[i] != '`' {
				result.WriteByte(sql[i])
				i++
			}
			if i < n {
				result.WriteByte('`')
				i++
			}
			continue
		}

		// [bracket]-quoted identifier (SQL Server compatibility in SQLite)
		if sql[i] == '[' {
			result.WriteByte('[')
			i++
			for i < n && sql[i] != ']' {
				result.WriteByte(sql[i])
				i++
			}
			if i < n {
				result.WriteByte(']')
				i++
			}
			continue
		}

		result.WriteByte(sql[i])
		i++
	}

	return result.String()
}
