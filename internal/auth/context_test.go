package auth

import (
	"context"
	"testing"

	"github.com/dukerupert/mizan/internal/model"
)

func TestWithAuthAndFromContext(t *testing.T) {
	ac := AuthContext{
		UID:          "uid-1",
		SessionToken: "tok",
		Viewer:       &model.User{ID: "d1", UID: "uid-1", Role: model.RoleAdmin},
	}

	ctx := WithAuth(context.Background(), ac)
	got, ok := FromContext(ctx)
	if !ok {
		t.Fatal("expected AuthContext in context")
	}
	if got.UID != "uid-1" {
		t.Errorf("UID = %q, want uid-1", got.UID)
	}
	if got.Viewer == nil || got.Viewer.ID != "d1" {
		t.Errorf("Viewer = %+v, want doc d1", got.Viewer)
	}
}

func TestFromContextMissing(t *testing.T) {
	if _, ok := FromContext(context.Background()); ok {
		t.Error("expected false for missing AuthContext")
	}
}

func TestUID(t *testing.T) {
	ctx := WithAuth(context.Background(), AuthContext{UID: "uid-7"})
	if UID(ctx) != "uid-7" {
		t.Errorf("UID = %q, want uid-7", UID(ctx))
	}
	if UID(context.Background()) != "" {
		t.Error("expected empty UID for missing context")
	}
}

func TestViewerMissing(t *testing.T) {
	if Viewer(context.Background()) != nil {
		t.Error("expected nil viewer for missing context")
	}
}

func TestIsAdmin(t *testing.T) {
	admin := WithAuth(context.Background(), AuthContext{Viewer: &model.User{Role: model.RoleAdmin}})
	if !IsAdmin(admin) {
		t.Error("expected IsAdmin = true for admin viewer")
	}

	member := WithAuth(context.Background(), AuthContext{Viewer: &model.User{Role: model.RoleMember}})
	if IsAdmin(member) {
		t.Error("expected IsAdmin = false for member viewer")
	}

	if IsAdmin(context.Background()) {
		t.Error("expected IsAdmin = false for missing context")
	}
}
