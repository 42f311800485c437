package users_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fynity/fynity/internal/rbac"
	"github.com/fynity/fynity/internal/shared"
	"github.com/fynity/fynity/internal/users"
	"github.com/fynity/fynity/internal/users/userstest"
)

type stubRevoker struct {
	calls []int64
}

func (s *stubRevoker) RevokeAll(_ context.Context, accountID int64) (int, error) {
	s.calls = append(s.calls, accountID)
	return 2, nil
}

type auditSpy struct {
	entries []shared.AuditLog
}

func (a *auditSpy) Record(_ context.Context, entry shared.AuditLog) error {
	a.entries = append(a.entries, entry)
	return nil
}

func seed(t *testing.T) (*userstest.Repository, users.Account, users.Account) {
	t.Helper()
	repo := userstest.New()
	repo.AddCollege(users.CollegeDetail{ID: 7, Name: "Fynity Institute", Code: "FI"})
	alice := repo.Put(users.Account{Email: "a@x.com", Username: "alice", IsActive: true, Profile: users.Profile{Bio: "hi"}})
	bob := repo.Put(users.Account{Email: "b@x.com", Username: "bob", IsActive: true})
	return repo, alice, bob
}

func principal(a users.Account) rbac.Principal {
	return rbac.Principal{AccountID: a.ID, Role: a.Role}
}

func TestUpdateMeLeavesAbsentFieldsUntouched(t *testing.T) {
	repo, alice, _ := seed(t)
	audit := &auditSpy{}
	svc := users.NewService(repo, nil, audit, nil)

	var req users.UpdateRequest
	require.NoError(t, json.Unmarshal([]byte(`{"first_name":"Alice","college":7,"semester":3,"cgpa":8.5}`), &req))

	got, err := svc.UpdateMe(context.Background(), principal(alice), req)
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.FirstName)
	assert.Equal(t, "hi", got.Profile.Bio)
	require.NotNil(t, got.College)
	assert.Equal(t, "FI", got.College.Code)
	assert.Equal(t, 3, *got.Semester)
	assert.Equal(t, "a@x.com", got.Email)
	assert.Equal(t, rbac.RoleFree, got.Role)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, shared.AuditAccountUpdated, audit.entries[0].Action)

	var clear users.UpdateRequest
	require.NoError(t, json.Unmarshal([]byte(`{"college":null,"bio":""}`), &clear))
	got, err = svc.UpdateMe(context.Background(), principal(alice), clear)
	require.NoError(t, err)
	assert.Nil(t, got.CollegeID)
	assert.Nil(t, got.College)
	assert.Equal(t, "", got.Profile.Bio)
	assert.Equal(t, "Alice", got.FirstName)
}

func TestUpdateMeIgnoresImmutableFields(t *testing.T) {
	repo, alice, _ := seed(t)
	svc := users.NewService(repo, nil, nil, nil)

	var req users.UpdateRequest
	require.NoError(t, json.Unmarshal([]byte(`{"role":"super_admin","email":"evil@x.com","id":99,"last_name":"B"}`), &req))
	got, err := svc.UpdateMe(context.Background(), principal(alice), req)
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleFree, got.Role)
	assert.Equal(t, "a@x.com", got.Email)
	assert.Equal(t, alice.ID, got.ID)
	assert.Equal(t, "B", got.LastName)
}

func TestUpdateMeValidation(t *testing.T) {
	repo, alice, _ := seed(t)
	svc := users.NewService(repo, nil, nil, nil)

	var req users.UpdateRequest
	require.NoError(t, json.Unmarshal([]byte(`{"semester":0,"mobile":"0123456789012345","college":42}`), &req))
	_, err := svc.UpdateMe(context.Background(), principal(alice), req)
	e, ok := shared.AsError(err)
	require.True(t, ok)
	assert.Equal(t, shared.KindValidation, e.Kind)
	assert.Equal(t, users.MsgProfileUpdateFailed, e.Message)
	assert.True(t, e.Details.Has("semester"))
	assert.True(t, e.Details.Has("mobile"))

	var unknown users.UpdateRequest
	require.NoError(t, json.Unmarshal([]byte(`{"college":42}`), &unknown))
	_, err = svc.UpdateMe(context.Background(), principal(alice), unknown)
	e, ok = shared.AsError(err)
	require.True(t, ok)
	assert.Equal(t, []string{`Invalid pk "42" - object does not exist.`}, e.Details["college"])
}

func TestGetEnforcesOwnership(t *testing.T) {
	repo, alice, bob := seed(t)
	svc := users.NewService(repo, nil, nil, nil)
	ctx := context.Background()

	got, err := svc.Get(ctx, principal(alice), alice.ID)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.ID)

	_, err = svc.Get(ctx, principal(alice), bob.ID)
	assert.True(t, shared.IsKind(err, shared.KindPermissionDenied))

	admin := rbac.Principal{AccountID: 500, Role: rbac.RoleCollegeAdmin}
	_, err = svc.Get(ctx, admin, bob.ID)
	require.NoError(t, err)

	_, err = svc.Get(ctx, admin, 404)
	assert.True(t, shared.IsKind(err, shared.KindNotFound))

	_, err = svc.Get(ctx, principal(alice), 404)
	assert.True(t, shared.IsKind(err, shared.KindPermissionDenied))
}

func TestSetAccessRevokesTokens(t *testing.T) {
	repo, alice, bob := seed(t)
	revoker := &stubRevoker{}
	audit := &auditSpy{}
	svc := users.NewService(repo, revoker, audit, nil)
	root := repo.Put(users.Account{Email: "root@x.com", Username: "root", Role: rbac.RoleSuperAdmin, IsActive: true})

	role := "subscriber"
	inactive := false
	got, err := svc.SetAccess(context.Background(), principal(root), bob.ID, users.AccessRequest{Role: &role, IsActive: &inactive})
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleSubscriber, got.Role)
	assert.False(t, got.IsActive)
	assert.Equal(t, []int64{bob.ID}, revoker.calls)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, shared.AuditAccountAccessChanged, audit.entries[0].Action)
	assert.Equal(t, root.ID, audit.entries[0].ActorID)

	_, err = svc.SetAccess(context.Background(), principal(alice), bob.ID, users.AccessRequest{Role: &role})
	assert.True(t, shared.IsKind(err, shared.KindPermissionDenied))

	bad := "owner"
	_, err = svc.SetAccess(context.Background(), principal(root), bob.ID, users.AccessRequest{Role: &bad})
	e, ok := shared.AsError(err)
	require.True(t, ok)
	assert.True(t, e.Details.Has("role"))

	_, err = svc.SetAccess(context.Background(), principal(root), root.ID, users.AccessRequest{IsActive: &inactive})
	assert.True(t, shared.IsKind(err, shared.KindValidation))

	_, err = svc.SetAccess(context.Background(), principal(root), 999, users.AccessRequest{IsActive: &inactive})
	assert.True(t, shared.IsKind(err, shared.KindNotFound))
}

func TestListByCollegeScopesCollegeAdmins(t *testing.T) {
	repo, _, _ := seed(t)
	repo.AddCollege(users.CollegeDetail{ID: 8, Name: "Other", Code: "OT"})
	seven, eight := int64(7), int64(8)
	student := repo.Put(users.Account{Email: "s@x.com", Username: "s", CollegeID: &seven})
	admin := repo.Put(users.Account{Email: "ca@x.com", Username: "ca", Role: rbac.RoleCollegeAdmin, CollegeID: &seven})
	svc := users.NewService(repo, nil, nil, nil)
	ctx := context.Background()

	list, err := svc.ListByCollege(ctx, principal(admin), 7)
	require.NoError(t, err)
	ids := []int64{}
	for _, a := range list {
		ids = append(ids, a.ID)
	}
	assert.Contains(t, ids, student.ID)

	_, err = svc.ListByCollege(ctx, principal(admin), eight)
	assert.True(t, shared.IsKind(err, shared.KindPermissionDenied))

	_, err = svc.ListByCollege(ctx, principal(student), 7)
	assert.True(t, shared.IsKind(err, shared.KindPermissionDenied))

	_, err = svc.ListByCollege(ctx, rbac.Principal{AccountID: 900, Role: rbac.RoleSuperAdmin}, eight)
	require.NoError(t, err)
}

func TestMeRequiresPrincipal(t *testing.T) {
	repo, alice, _ := seed(t)
	svc := users.NewService(repo, nil, nil, nil)

	_, err := svc.Me(context.Background(), rbac.Anonymous)
	assert.True(t, shared.IsKind(err, shared.KindNotAuthenticated))

	got, err := svc.Me(context.Background(), principal(alice))
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
}

func TestDeactivatedAccountIsRefused(t *testing.T) {
	ctx := context.Background()
	repo, alice, _ := seed(t)
	svc := users.NewService(repo, &stubRevoker{}, nil, nil)

	inactive := false
	_, err := repo.SetAccess(ctx, alice.ID, nil, &inactive)
	require.NoError(t, err)

	_, err = svc.Me(ctx, principal(alice))
	e, ok := shared.AsError(err)
	require.True(t, ok)
	assert.Equal(t, shared.KindAccountDisabled, e.Kind)
	assert.Equal(t, users.MsgAccountDisabled, e.Message)

	bio := "still here"
	_, err = svc.UpdateMe(ctx, principal(alice), users.UpdateRequest{Bio: &bio})
	assert.True(t, shared.IsKind(err, shared.KindAccountDisabled))

	stored, err := repo.FindByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "hi", stored.Profile.Bio, "no write for a disabled account")
}
