package auth

import "testing"

func TestPasswordHashing(t *testing.T) {
	s := NewService("secret")

	hash, err := s.HashPassword("hunter2")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "hunter2" {
		t.Fatal("password stored in the clear")
	}
	if !s.CheckPassword("hunter2", hash) {
		t.Fatal("correct password rejected")
	}
	if s.CheckPassword("wrong", hash) {
		t.Fatal("wrong password accepted")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	s := NewService("secret")

	token, err := s.GenerateToken(42)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	userID, err := s.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if userID != 42 {
		t.Fatalf("userID = %d, want 42", userID)
	}
}

func TestTokenWrongSecretRejected(t *testing.T) {
	token, err := NewService("secret-a").GenerateToken(42)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	if _, err := NewService("secret-b").ValidateToken(token); err == nil {
		t.Fatal("token accepted with the wrong secret")
	}
}

func TestGarbageTokenRejected(t *testing.T) {
	s := NewService("secret")
	if _, err := s.ValidateToken("not-a-token"); err == nil {
		t.Fatal("garbage token accepted")
	}
}

func TestRandomSecretIsUnique(t *testing.T) {
	if RandomSecret() == RandomSecret() {
		t.Fatal("two random secrets matched")
	}
	if len(RandomSecret()) != 32 {
		t.Fatal("unexpected secret length")
	}
}
