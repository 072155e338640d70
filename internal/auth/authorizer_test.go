package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sweetshop/apiserver/types"
)

func TestRequireRole(t *testing.T) {
	admin := &Identity{UserID: "a", Role: types.RoleAdmin}
	user := &Identity{UserID: "u", Role: types.RoleUser}

	tests := []struct {
		name     string
		identity *Identity
		role     types.Role
		wantErr  error
	}{
		{name: "missing identity", identity: nil, role: types.RoleAdmin, wantErr: ErrUnauthenticated},
		{name: "user needs admin", identity: user, role: types.RoleAdmin, wantErr: ErrForbidden},
		{name: "admin needs admin", identity: admin, role: types.RoleAdmin},
		{name: "user needs user", identity: user, role: types.RoleUser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := RequireRole(tt.identity, tt.role)
			if tt.wantErr != nil {
				assert.False(t, decision.Allowed())
				assert.ErrorIs(t, decision.Err, tt.wantErr)
				return
			}
			require.True(t, decision.Allowed())
			assert.Equal(t, *tt.identity, decision.Identity)
		})
	}
}

func TestIdentityContext(t *testing.T) {
	_, ok := IdentityFromContext(context.Background())
	assert.False(t, ok)

	ctx := WithIdentity(context.Background(), Identity{UserID: "u", Role: types.RoleUser})
	identity, ok := IdentityFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "u", identity.UserID)
}
