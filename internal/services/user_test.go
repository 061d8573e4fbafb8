package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/studex/apiserver/types"
)

func TestRegisterAndAuthenticate(t *testing.T) {
	db := newMemDB()
	svc := NewUserService(fakeUsers{db})
	ctx := context.Background()

	user, err := svc.Register(ctx, Registration{Email: " Maria@UNI.edu.pe ", Password: "supersecret", Name: "María"})
	require.NoError(t, err)
	require.Equal(t, "maria@uni.edu.pe", user.Email)
	require.Equal(t, types.RoleBuyer, user.Role)
	require.NotEqual(t, "supersecret", user.PasswordHash)

	_, err = svc.Register(ctx, Registration{Email: "maria@uni.edu.pe", Password: "supersecret", Name: "Otra"})
	require.Equal(t, KindConflict, KindOf(err))

	got, err := svc.Authenticate(ctx, "maria@uni.edu.pe", "supersecret")
	require.NoError(t, err)
	require.Equal(t, user.ID, got.ID)

	_, err = svc.Authenticate(ctx, "maria@uni.edu.pe", "wrongpassword")
	require.Equal(t, KindAuth, KindOf(err))
	_, err = svc.Authenticate(ctx, "nobody@uni.edu.pe", "supersecret")
	require.Equal(t, KindAuth, KindOf(err))
}

func TestRegisterValidation(t *testing.T) {
	svc := NewUserService(fakeUsers{newMemDB()})
	ctx := context.Background()

	cases := []Registration{
		{Email: "not-an-email", Password: "supersecret", Name: "A"},
		{Email: "a@b.pe", Password: "short", Name: "A"},
		{Email: "a@b.pe", Password: "supersecret", Name: "  "},
		{Email: "Name <a@b.pe>", Password: "supersecret", Name: "A"},
	}
	for _, reg := range cases {
		_, err := svc.Register(ctx, reg)
		require.Equal(t, KindValidation, KindOf(err), "%+v", reg)
	}
}

func TestBlockedUserCannotSignIn(t *testing.T) {
	db := newMemDB()
	svc := NewUserService(fakeUsers{db})
	ctx := context.Background()
	admin := db.addUser(types.User{Email: "admin@uni.edu.pe", Role: types.RoleAdmin})

	user, err := svc.Register(ctx, Registration{Email: "b@uni.edu.pe", Password: "supersecret", Name: "B"})
	require.NoError(t, err)

	_, err = svc.SetBlocked(ctx, admin.ID, user.ID, true)
	require.NoError(t, err)
	_, err = svc.Authenticate(ctx, "b@uni.edu.pe", "supersecret")
	require.Equal(t, KindForbidden, KindOf(err))

	_, err = svc.SetBlocked(ctx, admin.ID, admin.ID, true)
	require.Equal(t, KindValidation, KindOf(err))
}

func TestSignInWithGoogleLinksByEmail(t *testing.T) {
	db := newMemDB()
	svc := NewUserService(fakeUsers{db})
	ctx := context.Background()

	existing, err := svc.Register(ctx, Registration{Email: "g@uni.edu.pe", Password: "supersecret", Name: "G"})
	require.NoError(t, err)

	linked, err := svc.SignInWithGoogle(ctx, GoogleProfile{Subject: "sub-1", Email: "G@uni.edu.pe", AvatarURL: "https://img/x.png", Verified: true})
	require.NoError(t, err)
	require.Equal(t, existing.ID, linked.ID)
	require.Equal(t, "sub-1", linked.GoogleID)
	require.True(t, linked.IsVerified)
	require.Equal(t, "https://img/x.png", linked.AvatarURL)

	again, err := svc.SignInWithGoogle(ctx, GoogleProfile{Subject: "sub-1"})
	require.NoError(t, err)
	require.Equal(t, existing.ID, again.ID)

	fresh, err := svc.SignInWithGoogle(ctx, GoogleProfile{Subject: "sub-2", Email: "nuevo@uni.edu.pe"})
	require.NoError(t, err)
	require.Equal(t, "nuevo", fresh.Name)
	require.Empty(t, fresh.PasswordHash)

	_, err = svc.SignInWithGoogle(ctx, GoogleProfile{Email: "x@uni.edu.pe"})
	require.Equal(t, KindAuth, KindOf(err))
}

func TestProfileAndPassword(t *testing.T) {
	db := newMemDB()
	svc := NewUserService(fakeUsers{db})
	ctx := context.Background()

	user, err := svc.Register(ctx, Registration{Email: "p@uni.edu.pe", Password: "supersecret", Name: "P"})
	require.NoError(t, err)

	uni := " UNMSM "
	updated, err := svc.UpdateProfile(ctx, user.ID, ProfileUpdate{University: &uni})
	require.NoError(t, err)
	require.Equal(t, "UNMSM", updated.University)
	require.Equal(t, "P", updated.Name)

	err = svc.ChangePassword(ctx, user.ID, "wrongpassword", "anothersecret")
	require.Equal(t, KindAuth, KindOf(err))
	require.NoError(t, svc.ChangePassword(ctx, user.ID, "supersecret", "anothersecret"))
	_, err = svc.Authenticate(ctx, "p@uni.edu.pe", "anothersecret")
	require.NoError(t, err)

	promoted, err := svc.SetRole(ctx, user.ID, "Seller")
	require.NoError(t, err)
	require.Equal(t, types.RoleSeller, promoted.Role)
	_, err = svc.SetRole(ctx, user.ID, "owner")
	require.Equal(t, KindValidation, KindOf(err))
}
