package main

import (
	"database/sql"
	"net/url"
	"strings"
)

// PostgresAdapter implements DBAdapter for PostgreSQL databases.
type PostgresAdapter struct{}

func (a *PostgresAdapter) DriverName() string    { return "postgres" }
func (a *PostgresAdapter) URIScheme() string     { return "postgres" }
func (a *PostgresAdapter) BeginReadOnly() string { return "BEGIN READ ONLY" }

func (a *PostgresAdapter) Matches(endpoint string) bool {
	return strings.HasPrefix(endpoint, "postgres://") || strings.HasPrefix(endpoint, "postgresql://")
}

func (a *PostgresAdapter) DriverDSN(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", &ConfigError{Key: "endpoint", Reason: "malformed postgres URL"}
	}
	if u.Host == "" {
		return "", &ConfigError{Key: "endpoint", Reason: "postgres URL has no host"}
	}
	return endpoint, nil
}

func (a *PostgresAdapter) BuildDSN(lookup func(string) (string, bool)) (string, bool, error) {
	keys := []string{"MCP_PG_HOST", "MCP_PG_PORT", "MCP_PG_DB", "MCP_PG_USER", "MCP_PG_PASSWORD"}
	values, ok, err := requireEnv(lookup, keys)
	if !ok || err != nil {
		return "", ok, err
	}
	sslmode, _ := lookup("MCP_PG_SSLMODE")
	if sslmode == "" {
		sslmode = "prefer"
	}

	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(values["MCP_PG_USER"], values["MCP_PG_PASSWORD"]),
		Host:     values["MCP_PG_HOST"] + ":" + values["MCP_PG_PORT"],
		Path:     "/" + values["MCP_PG_DB"],
		RawQuery: "sslmode=" + url.QueryEscape(sslmode),
	}
	return u.String(), true, nil
}

func (a *PostgresAdapter) DatabaseName(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Path, "/")
}

func (a *PostgresAdapter) MaskDSN(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "postgres://" + maskedSecret
	}

	pairs := strings.Split(u.RawQuery, "&")
	for i, pair := range pairs {
		if key, _, _ := strings.Cut(pair, "="); key == "password" {
			pairs[i] = key + "=" + maskedSecret
		}
	}
	u.RawQuery = strings.Join(pairs, "&")

	user := u.User
	u.User = nil
	masked := u.String()
	if user != nil {
		userinfo := url.User(user.Username()).String()
		if _, has := user.Password(); has {
			userinfo += ":" + maskedSecret
		}
		masked = strings.Replace(masked, "://", "://"+userinfo+"@", 1)
	}
	return masked
}

func (a *PostgresAdapter) ListTablesQuery(databaseName string) (string, []any) {
	return `SELECT table_name FROM information_schema.tables WHERE table_schema = 'public' AND table_catalog = $1`,
		[]any{databaseName}
}

func (a *PostgresAdapter) ReadSchemaQuery(databaseName, tableName string) (string, []any) {
	return `SELECT column_name, data_type, is_nullable, column_default
		FROM information_schema.columns
		WHERE table_catalog = $1 AND table_schema = 'public' AND table_name = $2
		ORDER BY ordinal_position`, []any{databaseName, tableName}
}

func (a *PostgresAdapter) ScanSchemaRow(rows *sql.Rows) (map[string]any, error) {
	var colName, dataType, isNullable string
	var colDefault sql.NullString

	if err := rows.Scan(&colName, &dataType, &isNullable, &colDefault); err != nil {
		return nil, err
	}

	col := map[string]any{
		"column_name": colName,
		"data_type":   dataType,
		"is_nullable": isNullable,
	}
	if colDefault.Valid {
		col["column_default"] = colDefault.String
	}
	return col, nil
}

// RemoveStringsAndComments strips string literals and comments from SQL
// for safe keyword detection. PostgreSQL-specific: no # comments, no backtick
// identifiers, handles $$ dollar-quoted strings, no backslash escaping by default.
func (a *PostgresAdapter) RemoveStringsAndComments(sql string) string {
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

		// Dollar-quoted string $tag$...$tag$ or $$...$$
		if sql[i] == '$' {
			tagEnd := strings.Index(sql[i+1:], "$")
			if tagEnd >= 0 {
				tag := sql[i : i+tagEnd+2] // e.g., "$$" or "$tag$"
				closeIdx := strings.Index(sql[i+len(tag):], tag)
				if closeIdx >= 0 {
					i += len(tag) + closeIdx + len(tag)
					result.WriteString("''") // Placeholder for string content
					continue
				}
			}
		}

		// Single-quoted string (no backslash escaping in standard PostgreSQL)
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

		// Double-quoted identifier (PostgreSQL standard identifier quoting)
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

		result.WriteByte(sql[i])
		i++
	}

	return result.String()
}
