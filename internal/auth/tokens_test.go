package auth

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func testRedis(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_URL")
	if addr == "" {
		t.Skip("REDIS_URL not set")
	}
	return redis.NewClient(&redis.Options{Addr: addr})
}

func TestIssueAndValidateSessionToken(t *testing.T) {
	if len(os.Getenv("SESSION_SECRET")) < 32 {
		t.Skip("SESSION_SECRET not set")
	}
	rdb := testRedis(t)
	defer rdb.Close()

	tok, err := IssueSessionToken("sess-test", time.Hour, rdb)
	if err != nil {
		t.Fatalf("issue error: %v", err)
	}
	if tok.SessionID != "sess-test" || tok.Token == "" {
		t.Fatalf("token not populated: %+v", tok)
	}

	claims, err := ValidateSessionToken(tok.Token, rdb)
	if err != nil {
		t.Fatalf("validate error: %v", err)
	}
	if claims.SessionID != "sess-test" {
		t.Fatalf("session id mismatch: %s", claims.SessionID)
	}

	// revoked token stops validating even before expiry
	if err := RevokeSessionToken(claims.ID, rdb); err != nil {
		t.Fatalf("revoke error: %v", err)
	}
	if _, err := ValidateSessionToken(tok.Token, rdb); err == nil {
		t.Fatalf("revoked token still validates")
	}
}

func TestValidateRejectsGarbage(t *testing.T) {
	if len(os.Getenv("SESSION_SECRET")) < 32 {
		t.Skip("SESSION_SECRET not set")
	}
	rdb := testRedis(t)
	defer rdb.Close()

	if _, err := ValidateSessionToken("not.a.jwt", rdb); err == nil {
		t.Fatalf("garbage token accepted")
	}
	if _, err := ValidateSessionToken(strings.Repeat("a", 200), rdb); err == nil {
		t.Fatalf("garbage token accepted")
	}
}
