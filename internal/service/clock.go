package service

import "time"

// now is the default clock. Times are kept in UTC at microsecond precision so
// they round-trip through both SQLite and PostgreSQL unchanged.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
