package shared_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fynity/fynity/internal/platform/db/dbtest"
	"github.com/fynity/fynity/internal/shared"
)

func TestAuditLoggerRejectsIncompleteEntries(t *testing.T) {
	var nilLogger *shared.AuditLogger
	require.Error(t, nilLogger.Record(context.Background(), shared.AccountAudit(1, shared.AuditAccountLogin, 1, nil)))

	logger := shared.NewAuditLogger(nil)
	require.Error(t, logger.Record(context.Background(), shared.AuditLog{Action: shared.AuditAccountLogin}))
}

func TestAccountAuditBuildsEntry(t *testing.T) {
	entry := shared.AccountAudit(7, shared.AuditAccountAccessChanged, 42, map[string]any{"role": "subscriber"})
	require.Equal(t, "account", entry.Entity)
	require.Equal(t, "42", entry.EntityID)
	require.Equal(t, int64(7), entry.ActorID)
}

func TestAuditLoggerPersists(t *testing.T) {
	pool := dbtest.Open(t)
	ctx := context.Background()
	logger := shared.NewAuditLogger(pool)

	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, logger.Record(ctx, shared.AuditLog{
		Action:   shared.AuditCollegeCreated,
		Entity:   "college",
		EntityID: "3",
		Meta:     map[string]any{"code": "GEC"},
		At:       at,
	}))

	var (
		actor    *int64
		action   string
		meta     []byte
		occurred time.Time
	)
	err := pool.QueryRow(ctx, `SELECT actor_id, action, meta, occurred_at FROM audit_logs`).Scan(&actor, &action, &meta, &occurred)
	require.NoError(t, err)
	require.Nil(t, actor)
	require.Equal(t, shared.AuditCollegeCreated, action)
	require.True(t, at.Equal(occurred))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(meta, &decoded))
	require.Equal(t, "GEC", decoded["code"])
}
