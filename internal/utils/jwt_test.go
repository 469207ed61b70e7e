package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, secret []byte, claims *RoomTokenClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return s
}

func TestValidateRoomToken(t *testing.T) {
	tokenStr := signToken(t, testSecret, &RoomTokenClaims{
		RoomID: "r1",
		UserID: "u1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	claims, err := ValidateRoomToken(testSecret, tokenStr)
	if err != nil {
		t.Fatalf("expected valid token, got %v", err)
	}
	if claims.RoomID != "r1" || claims.UserID != "u1" {
		t.Errorf("unexpected claims: %+v", claims)
	}
}

func TestValidateRoomTokenWrongSecret(t *testing.T) {
	tokenStr := signToken(t, []byte("other-secret"), &RoomTokenClaims{RoomID: "r1"})

	if _, err := ValidateRoomToken(testSecret, tokenStr); err == nil {
		t.Error("token signed with a different secret should be rejected")
	}
}

func TestValidateRoomTokenExpired(t *testing.T) {
	tokenStr := signToken(t, testSecret, &RoomTokenClaims{
		RoomID: "r1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})

	if _, err := ValidateRoomToken(testSecret, tokenStr); err == nil {
		t.Error("expired token should be rejected")
	}
}

func TestValidateRoomTokenWrongAlgorithm(t *testing.T) {
	tokenStr, err := jwt.NewWithClaims(jwt.SigningMethodNone, &RoomTokenClaims{RoomID: "r1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	if _, err := ValidateRoomToken(testSecret, tokenStr); err == nil {
		t.Error("non-HMAC token should be rejected")
	}
}

func TestValidateRoomTokenGarbage(t *testing.T) {
	if _, err := ValidateRoomToken(testSecret, "not.a.token"); err == nil {
		t.Error("malformed token should be rejected")
	}
}

func TestExtractTokenFromHeader(t *testing.T) {
	token, err := ExtractTokenFromHeader("Bearer abc123")
	if err != nil {
		t.Fatalf("expected token, got %v", err)
	}
	if token != "abc123" {
		t.Errorf("expected abc123, got %s", token)
	}
}

func TestExtractTokenFromHeaderMissing(t *testing.T) {
	if _, err := ExtractTokenFromHeader(""); err == nil {
		t.Error("empty header should be rejected")
	}
}

func TestExtractTokenFromHeaderWrongScheme(t *testing.T) {
	if _, err := ExtractTokenFromHeader("Basic abc123"); err == nil {
		t.Error("non-bearer header should be rejected")
	}
}
