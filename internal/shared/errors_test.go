package shared

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorStatusCodes(t *testing.T) {
	cases := map[Kind]int{
		KindValidation:           http.StatusBadRequest,
		KindAuthenticationFailed: http.StatusUnauthorized,
		KindNotAuthenticated:     http.StatusUnauthorized,
		KindToken:                http.StatusUnauthorized,
		KindAccountDisabled:      http.StatusForbidden,
		KindPermissionDenied:     http.StatusForbidden,
		KindNotFound:             http.StatusNotFound,
		KindThrottled:            http.StatusTooManyRequests,
		KindInternal:             http.StatusInternalServerError,
	}
	for kind, want := range cases {
		e := &Error{Kind: kind, Message: "x"}
		assert.Equal(t, want, e.StatusCode(), string(kind))
	}

	overridden := TokenError("bad").WithStatus(http.StatusBadRequest)
	assert.Equal(t, http.StatusBadRequest, overridden.StatusCode())
}

func TestErrorUnwrapAndAs(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("outer: %w", TokenError("bad token").Wrap(cause))

	assert.ErrorIs(t, err, cause)
	got, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindToken, got.Kind)
	assert.True(t, IsKind(err, KindToken))
	assert.False(t, IsKind(err, KindValidation))
	assert.ErrorIs(t, NotFound("missing"), ErrNotFound)
}

func TestDetails(t *testing.T) {
	d := Details{}
	d.Add("password", "Passwords do not match.")
	d.Add("email", "required")
	d.Add("email", "invalid")

	assert.True(t, d.Has("email"))
	assert.False(t, d.Has("username"))
	assert.Equal(t, []string{"email", "password"}, d.Fields())
	assert.Len(t, d["email"], 2)
}

func TestAuditValidation(t *testing.T) {
	require.Error(t, validateAudit(AuditLog{Action: "x"}))
	entry := AccountAudit(0, AuditAccountLogin, 42, nil)
	require.NoError(t, validateAudit(entry))
	assert.Equal(t, "42", entry.EntityID)
	assert.Equal(t, "account", entry.Entity)

	var nilLogger *AuditLogger
	require.Error(t, nilLogger.Record(t.Context(), entry))
}
