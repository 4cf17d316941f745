package postgres

import "github.com/lib/pq"

// pqErrorCode extracts a Postgres error code from err, or "" if err isn't a
// *pq.Error (e.g. it came from sqlmock in tests).
func pqErrorCode(err error) string {
	if err == nil {
		return ""
	}
	if pqErr, ok := err.(*pq.Error); ok {
		return string(pqErr.Code)
	}
	return ""
}
