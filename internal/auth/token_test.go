package auth

import (
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/spec-kit/lifecycle-engine/internal/domain"
)

func TestIssueAndVerify(t *testing.T) {
	tm := NewTokenManager("secret", 5)
	role := domain.StaffRoleAdmin
	raw, exp, err := tm.Issue(domain.StaffActor("S1"), &role)
	if err != nil {
		t.Fatal(err)
	}
	if time.Until(exp) > 5*time.Minute {
		t.Fatalf("expiry too far out: %v", exp)
	}
	claims, err := tm.Verify(raw)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got := claims.Actor(); got != domain.StaffActor("S1") {
		t.Fatalf("unexpected actor %+v", got)
	}
	if claims.Role == nil || *claims.Role != domain.StaffRoleAdmin {
		t.Fatalf("role lost: %+v", claims.Role)
	}

	if _, _, err := tm.Issue(domain.Actor{Type: domain.ActorAI}, nil); err == nil {
		t.Fatal("anonymous actor must be rejected")
	}
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	tm := NewTokenManager("secret", 5)
	sign := func(claims Claims) string {
		t.Helper()
		raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
		if err != nil {
			t.Fatal(err)
		}
		return raw
	}
	now := time.Now()

	cases := map[string]string{
		"expired": sign(Claims{ActorType: domain.ActorStaff, RegisteredClaims: jwt.RegisteredClaims{
			Issuer: tokenIssuer, Subject: "S1", ExpiresAt: jwt.NewNumericDate(now.Add(-time.Hour)),
		}}),
		"foreign issuer": sign(Claims{ActorType: domain.ActorStaff, RegisteredClaims: jwt.RegisteredClaims{
			Issuer: "someone-else", Subject: "S1", ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		}}),
		"no expiry": sign(Claims{ActorType: domain.ActorStaff, RegisteredClaims: jwt.RegisteredClaims{
			Issuer: tokenIssuer, Subject: "S1",
		}}),
		"no subject": sign(Claims{ActorType: domain.ActorStaff, RegisteredClaims: jwt.RegisteredClaims{
			Issuer: tokenIssuer, ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		}}),
		"garbage": "not.a.token",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := tm.Verify(raw); err == nil {
				t.Fatal("expected rejection")
			}
		})
	}
}
