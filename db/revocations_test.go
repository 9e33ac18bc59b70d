package db

import (
	"context"
	"testing"
	"time"
)

func TestTokenRevocations(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	issued := time.Now().Add(-time.Hour)
	expire := time.Now().Add(time.Hour)

	revoked, err := d.IsTokenRevoked(ctx, "tk1", 7, issued)
	if err != nil || revoked {
		t.Fatalf("fresh token = %v, %v", revoked, err)
	}
	if revoked, _ = d.IsTokenRevoked(ctx, "", 7, issued); !revoked {
		t.Error("token without id trusted")
	}

	if err = d.RevokeToken(ctx, "tk1", 7, expire); err != nil {
		t.Fatal(err)
	}
	if revoked, _ = d.IsTokenRevoked(ctx, "tk1", 7, issued); !revoked {
		t.Error("signed out token not revoked")
	}
	if revoked, _ = d.IsTokenRevoked(ctx, "tk2", 7, issued); revoked {
		t.Error("sign out of tk1 revoked tk2")
	}

	if err = d.RevokeUserTokens(ctx, 7, expire); err != nil {
		t.Fatal(err)
	}
	if revoked, _ = d.IsTokenRevoked(ctx, "tk2", 7, issued); !revoked {
		t.Error("older token survived a user wide revocation")
	}
	if revoked, _ = d.IsTokenRevoked(ctx, "tk3", 7, time.Now().Add(2*time.Second)); revoked {
		t.Error("token issued after the revocation was rejected")
	}
	if revoked, _ = d.IsTokenRevoked(ctx, "tk4", 8, issued); revoked {
		t.Error("revocation leaked to another user")
	}
}

func TestPurgeRevocations(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	_ = d.RevokeToken(ctx, "old", 7, time.Now().Add(-time.Minute))
	_ = d.RevokeToken(ctx, "live", 7, time.Now().Add(time.Hour))

	if revoked, _ := d.IsTokenRevoked(ctx, "old", 7, time.Now()); revoked {
		t.Error("expired revocation still applies")
	}
	n, err := d.PurgeRevocations(ctx, time.Now())
	if err != nil || n != 1 {
		t.Fatalf("purge = %d, %v, want 1", n, err)
	}
	if revoked, _ := d.IsTokenRevoked(ctx, "live", 7, time.Now()); !revoked {
		t.Error("purge dropped a live revocation")
	}
}
