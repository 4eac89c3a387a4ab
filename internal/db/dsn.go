package db

import (
	"fmt"
	"net/url"
	"strings"
)

// toMySQLDSN converts a mysql:// or mariadb:// URL to the driver format.
// Anything else is passed through unchanged.
func toMySQLDSN(dsn string) (string, error) {
	if !strings.HasPrefix(dsn, "mariadb://") && !strings.HasPrefix(dsn, "mysql://") {
		return dsn, nil
	}

	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse dsn: %w", err)
	}
	user := ""
	pass := ""
	if u.User != nil {
		user = u.User.Username()
		pass, _ = u.User.Password()
	}
	host := u.Host
	name := strings.TrimPrefix(u.Path, "/")
	if user == "" || host == "" || name == "" {
		return "", fmt.Errorf("incomplete dsn: user, host and database are required")
	}
	return fmt.Sprintf("%s:%s@tcp(%s)/%s?charset=utf8mb4&interpolateParams=true", user, pass, host, name), nil
}
