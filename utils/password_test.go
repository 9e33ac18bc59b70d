package utils

import "testing"

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("s3cret-pass")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash == "s3cret-pass" {
		t.Fatal("hash equals the plain password")
	}
	if !CheckPassword(hash, "s3cret-pass") {
		t.Error("matching password rejected")
	}
	if CheckPassword(hash, "wrong") {
		t.Error("wrong password accepted")
	}
	if CheckPassword("not-a-hash", "s3cret-pass") {
		t.Error("garbage hash accepted")
	}
}

func TestMustTokenId(t *testing.T) {
	a, b := MustTokenId(), MustTokenId()
	if a == "" || a == b {
		t.Errorf("ids %q and %q are not unique", a, b)
	}
}
