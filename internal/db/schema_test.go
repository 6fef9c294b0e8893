package db

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSchemaCoversBookingConstraints(t *testing.T) {
	assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS appointments")
	assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS event_logs")
	assert.Contains(t, schema, "ON appointments (doctor_id, date, time_slot)")
	assert.Contains(t, schema, "WHERE status <> 'cancelled'")

	// Migrate reruns on every start.
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if !strings.HasPrefix(stmt, "CREATE") {
			continue
		}
		assert.Contains(t, stmt, "IF NOT EXISTS", stmt)
	}
}
