package main

import (
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// MySQLAdapter implements DBAdapter for MySQL databases.
type MySQLAdapter struct{}

func (a *MySQLAdapter) DriverName() string    { return "mysql" }
func (a *MySQLAdapter) URIScheme() string     { return "mysql" }
func (a *MySQLAdapter) BeginReadOnly() string { return "START TRANSACTION READ ONLY" }

// Matches accepts mysql:// URLs and native go-sql-driver DSNs such as
// user:password@tcp(localhost:3306)/dbname.
func (a *MySQLAdapter) Matches(endpoint string) bool {
	return strings.HasPrefix(endpoint, "mysql://") ||
		strings.Contains(endpoint, "@tcp(") ||
		strings.Contains(endpoint, "@unix(")
}

func (a *MySQLAdapter) DriverDSN(endpoint string) (string, error) {
	cfg, err := a.config(endpoint)
	if err != nil {
		return "", err
	}
	return cfg.FormatDSN(), nil
}

// config parses either form of endpoint into a driver configuration.
func (a *MySQLAdapter) config(endpoint string) (*mysql.Config, error) {
	rest := strings.TrimPrefix(endpoint, "mysql://")
	if rest == endpoint || strings.Contains(rest, "(") {
		cfg, err := mysql.ParseDSN(rest)
		if err != nil {
			return nil, &ConfigError{Key: "endpoint", Reason: "malformed mysql DSN"}
		}
		return cfg, nil
	}

	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return nil, &ConfigError{Key: "endpoint", Reason: "malformed mysql URL"}
	}
	addr := u.Host
	if u.Port() == "" {
		addr += ":3306"
	}

	native := fmt.Sprintf("tcp(%s)%s", addr, u.EscapedPath())
	if native == fmt.Sprintf("tcp(%s)", addr) {
		native += "/"
	}
	if u.RawQuery != "" {
		native += "?" + u.RawQuery
	}
	cfg, err := mysql.ParseDSN(native)
	if err != nil {
		return nil, &ConfigError{Key: "endpoint", Reason: "malformed mysql URL"}
	}
	if u.User != nil {
		cfg.User = u.User.Username()
		cfg.Passwd, _ = u.User.Password()
	}
	return cfg, nil
}

func (a *MySQLAdapter) BuildDSN(lookup func(string) (string, bool)) (string, bool, error) {
	keys := []string{"MCP_MYSQL_HOST", "MCP_MYSQL_PORT", "MCP_MYSQL_DB", "MCP_MYSQL_USER", "MCP_MYSQL_PASSWORD"}
	values, ok, err := requireEnv(lookup, keys)
	if !ok || err != nil {
		return "", ok, err
	}

	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s",
		values["MCP_MYSQL_USER"], values["MCP_MYSQL_PASSWORD"],
		values["MCP_MYSQL_HOST"], values["MCP_MYSQL_PORT"], values["MCP_MYSQL_DB"]), true, nil
}

func (a *MySQLAdapter) DatabaseName(endpoint string) string {
	cfg, err := a.config(endpoint)
	if err != nil {
		return ""
	}
	return cfg.DBName
}

func (a *MySQLAdapter) MaskDSN(endpoint string) string {
	cfg, err := a.config(endpoint)
	if err != nil {
		return "mysql://" + maskedSecret
	}
	if cfg.Passwd != "" {
		cfg.Passwd = maskedSecret
	}
	return "mysql://" + cfg.FormatDSN()
}

func (a *MySQLAdapter) ListTablesQuery(databaseName string) (string, []any) {
	return `SELECT table_name FROM information_schema.tables WHERE table_schema = ?`,
		[]any{databaseName}
}

func (a *MySQLAdapter) ReadSchemaQuery(databaseName, tableName string) (string, []any) {
	return `SELECT column_name, data_type, is_nullable, column_key, column_default, extra
		FROM information_schema.columns
		WHERE table_schema = ? AND table_name = ?
		ORDER BY ordinal_position`, []any{databaseName, tableName}
}

func (a *MySQLAdapter) ScanSchemaRow(rows *sql.Rows) (map[string]any, error) {
	var colName, dataType, isNullable, colKey string
	var colDefault, extra sql.NullString

	if err := rows.Scan(&colName, &dataType, &isNullable, &colKey, &colDefault, &extra); err != nil {
		return nil, err
	}

	col := map[string]any{
		"column_name": colName,
		"data_type":   dataType,
		"is_nullable": isNullable,
		"column_key":  colKey,
	}
	if colDefault.Valid {
		col["column_default"] = colDefault.String
	}
	if extra.Valid && extra.String != "" {
		col["extra"] = extra.String
	}
	return col, nil
}

// RemoveStringsAndComments strips string literals and comments from SQL
// for safe keyword detection. MySQL-specific: supports # comments, backtick
// identifiers, and backslash escaping in strings.
func (a *MySQLAdapter) RemoveStringsAndComments(sql string) string {
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

		// Single-line comment starting with # (MySQL-specific)
		if sql[i] == '#' {
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

		// Single-quoted string
		if sql[i] == '\'' {
			i++
			for i < n {
				if sql[i] == '\'' {
					if i+1 < n && sql[i+1] == '\'' {
						i += 2 // Escaped quote
						continue
					}
					i++
					break
				}
				if sql[i] == '\\' && i+1 < n {
					i += 2 // Escaped character (MySQL-specific)
					continue
				}
				i++
			}
			result.WriteString("''") // Placeholder for string
			continue
		}

		// Double-quoted string (identifier in MySQL with ANSI_QUOTES, or string)
		if sql[i] == '"' {
			i++
			for i < n {
				if sql[i] == '"' {
					if i+1 < n && sql[i+1] == '"' {
						i += 2 // Escaped quote
						continue
					}
					i++
					break
				}
				if sql[i] == '\\' && i+1 < n {
					i += 2 // Escaped character (MySQL-specific)
					continue
				}
				i++
			}
			result.WriteString(`""`) // Placeholder for string
			continue
		}

		// Backtick-quoted identifier (MySQL-specific)
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

		result.WriteByte(sql[i])
		i++
	}

	return result.String()
}
