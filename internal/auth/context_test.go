package auth

import (
	"context"
	"testing"
)

func TestWithAuthAndFromContext(t *testing.T) {
	ac := AuthContext{UserID: 1, Role: "admin"}

	ctx := WithAuth(context.Background(), ac)
	got, ok := FromContext(ctx)
	if !ok {
		t.Fatal("expected AuthContext in context")
	}
	if got.UserID != 1 {
		t.Errorf("UserID = %d, want 1", got.UserID)
	}
	if got.Role != "admin" {
		t.Errorf("Role = %q, want %q", got.Role, "admin")
	}
	if !IsAdmin(ctx) {
		t.Error("expected IsAdmin to be true")
	}
}

func TestFromContextMissing(t *testing.T) {
	_, ok := FromContext(context.Background())
	if ok {
		t.Error("expected false for missing AuthContext")
	}
	if UserID(context.Background()) != 0 {
		t.Error("expected zero UserID for missing AuthContext")
	}
	if IsAdmin(context.Background()) {
		t.Error("expected IsAdmin false for missing AuthContext")
	}
}

func TestCurrentUser(t *testing.T) {
	if _, ok := CurrentUser(WithAuth(context.Background(), AuthContext{})); ok {
		t.Error("zero user id should not count as a current user")
	}
	id, ok := CurrentUser(WithAuth(context.Background(), AuthContext{UserID: 12}))
	if !ok || id != 12 {
		t.Errorf("CurrentUser = %d, %v; want 12, true", id, ok)
	}
}
