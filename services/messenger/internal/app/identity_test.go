package app

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestRegisterValidatesInput(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestApp(t)

	cases := map[string][3]string{
		"blank name":     {" ", "alice", "password123"},
		"short handle":   {"Alice", "al", "password123"},
		"bad handle":     {"Alice", "al ice", "password123"},
		"weak password":  {"Alice", "alice", "short1"},
		"digit password": {"Alice", "alice", "12345678"},
	}
	for name, in := range cases {
		if _, _, err := a.Register(ctx, in[0], in[1], in[2]); !errors.Is(err, ErrValidation) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
}

func TestRegisterNormalizesHandleAndRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestApp(t)

	identity, token, err := a.Register(ctx, "Alice", "  Alice.B ", "password123")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if identity.Handle != "alice.b" || !identity.AllowGroupInvites || token == "" {
		t.Fatalf("unexpected identity: %+v", identity)
	}
	if _, _, err := a.Register(ctx, "Other", "ALICE.B", "password123"); !errors.Is(err, ErrHandleTaken) {
		t.Fatalf("expected handle taken, got %v", err)
	}
}

func TestLoginAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestApp(t)
	alice, _ := register(t, a, "alice")

	if _, _, err := a.Login(ctx, "alice", "wrong-password1"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated for wrong password, got %v", err)
	}
	if _, _, err := a.Login(ctx, "nobody", "password123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected same error for unknown user, got %v", err)
	}
	_, token, err := a.Login(ctx, "ALICE", "password123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	got, err := a.Authenticate(ctx, token)
	if err != nil || got.ID != alice.ID {
		t.Fatalf("authenticate: %+v err=%v", got, err)
	}
	if _, err := a.Authenticate(ctx, "garbage"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated for garbage, got %v", err)
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestApp(t)
	_, token := register(t, a, "alice")

	if err := a.Logout(ctx, token); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := a.Authenticate(ctx, token); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected revoked token to fail, got %v", err)
	}
}

func TestHandleChangeReissuesToken(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestApp(t)
	alice, oldToken := register(t, a, "alice")
	register(t, a, "bob")

	taken := "bob"
	if _, _, err := a.UpdateProfile(ctx, alice.ID, ProfileUpdate{Handle: &taken}); !errors.Is(err, ErrHandleTaken) {
		t.Fatalf("expected handle taken, got %v", err)
	}

	same := "ALICE"
	status := "busy"
	updated, token, err := a.UpdateProfile(ctx, alice.ID, ProfileUpdate{Handle: &same, StatusText: &status})
	if err != nil || token != "" || updated.StatusText != "busy" {
		t.Fatalf("unchanged handle must not reissue: token=%q identity=%+v err=%v", token, updated, err)
	}

	renamed := "alice2"
	updated, newToken, err := a.UpdateProfile(ctx, alice.ID, ProfileUpdate{Handle: &renamed})
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if updated.Handle != "alice2" || newToken == "" {
		t.Fatalf("expected new handle and token, got %+v %q", updated, newToken)
	}
	if _, err := a.Authenticate(ctx, oldToken); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected old token to be rejected, got %v", err)
	}
	if got, err := a.Authenticate(ctx, newToken); err != nil || got.Handle != "alice2" {
		t.Fatalf("new token: %+v err=%v", got, err)
	}
	if _, _, err := a.Login(ctx, "alice2", "password123"); err != nil {
		t.Fatalf("login with new handle: %v", err)
	}
}

func TestHandleRenamedBackKeepsOldTokensInvalid(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestApp(t)
	alice, firstToken := register(t, a, "alice")

	away := "alice2"
	_, awayToken, err := a.UpdateProfile(ctx, alice.ID, ProfileUpdate{Handle: &away})
	if err != nil {
		t.Fatalf("rename away: %v", err)
	}
	back := "alice"
	updated, backToken, err := a.UpdateProfile(ctx, alice.ID, ProfileUpdate{Handle: &back})
	if err != nil {
		t.Fatalf("rename back: %v", err)
	}
	if updated.Handle != "alice" || backToken == "" {
		t.Fatalf("expected handle alice and a new token, got %+v %q", updated, backToken)
	}
	for name, token := range map[string]string{"first": firstToken, "away": awayToken} {
		if _, err := a.Authenticate(ctx, token); !errors.Is(err, ErrUnauthenticated) {
			t.Fatalf("expected %s token to stay rejected, got %v", name, err)
		}
	}
	if got, err := a.Authenticate(ctx, backToken); err != nil || got.ID != alice.ID {
		t.Fatalf("latest token: %+v err=%v", got, err)
	}
	_, loginToken, err := a.Login(ctx, "alice", "password123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := a.Authenticate(ctx, loginToken); err != nil {
		t.Fatalf("login token: %v", err)
	}
}

func TestUpdateProfileRejectsForeignAvatar(t *testing.T) {
	a, _ := newTestApp(t)
	alice, _ := register(t, a, "alice")
	avatar := "https://example.com/a.png"
	if _, _, err := a.UpdateProfile(context.Background(), alice.ID, ProfileUpdate{AvatarRef: &avatar}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSearchUsersExcludesSelf(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestApp(t)
	alice, _ := register(t, a, "alice")
	register(t, a, "alina")
	register(t, a, "bob")

	res, err := a.SearchUsers(ctx, alice.ID, "@AL")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res) != 1 || res[0].Handle != "alina" {
		t.Fatalf("unexpected results: %+v", res)
	}
	if res, _ := a.SearchUsers(ctx, alice.ID, " "); len(res) != 0 {
		t.Fatalf("blank query must return nothing, got %+v", res)
	}
}

func TestPreferencesRoundTrip(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestApp(t)
	alice, _ := register(t, a, "alice")

	blob, err := a.GetPreferences(ctx, alice.ID)
	if err != nil || string(blob) != "{}" {
		t.Fatalf("expected empty object, got %s err=%v", blob, err)
	}
	if err := a.PutPreferences(ctx, alice.ID, json.RawMessage(`{"theme":`)); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected invalid json to fail, got %v", err)
	}
	want := `{"theme":"dark","effects":["snow"]}`
	if err := a.PutPreferences(ctx, alice.ID, json.RawMessage(want)); err != nil {
		t.Fatalf("put: %v", err)
	}
	blob, err = a.GetPreferences(ctx, alice.ID)
	if err != nil || string(blob) != want {
		t.Fatalf("expected %s, got %s err=%v", want, blob, err)
	}
	if err := a.PutPreferences(ctx, "ghost", json.RawMessage(want)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
