package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type SessionToken struct {
	Token     string    `json:"session_token"`
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Claims struct {
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

var (
	loadSecretOnce sync.Once
	sessionSecret  []byte
	loadSecretErr  error
)

func ensureSecret() error {
	loadSecretOnce.Do(func() {
		secret := os.Getenv("SESSION_SECRET")
		if len(secret) < 32 {
			loadSecretErr = fmt.Errorf("SESSION_SECRET must be configured and at least 32 characters")
			return
		}
		sessionSecret = []byte(secret)
	})

	return loadSecretErr
}

// IssueSessionToken mints a bearer token scoped to one anonymous upload
// session. There are no user accounts; the session is the only principal,
// and the JTI in Redis makes the token revocable before expiry.
func IssueSessionToken(sessionID string, ttl time.Duration, rdb *redis.Client) (*SessionToken, error) {
	if err := ensureSecret(); err != nil {
		return nil, err
	}

	now := time.Now()
	jti := uuid.NewString()
	exp := now.Add(ttl)

	claims := Claims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   sessionID,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "tracebrief",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(sessionSecret)
	if err != nil {
		return nil, err
	}

	// Store JTI in Redis for revocation capability
	ctx := context.Background()
	if err := rdb.Set(ctx, "session:"+jti, sessionID, ttl).Err(); err != nil {
		return nil, err
	}

	return &SessionToken{
		Token:     signed,
		SessionID: sessionID,
		ExpiresAt: exp,
	}, nil
}

func ValidateSessionToken(tokenString string, rdb *redis.Client) (*Claims, error) {
	if err := ensureSecret(); err != nil {
		return nil, err
	}

	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// Prevent algorithm confusion attacks
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return sessionSecret, nil
	})

	if err != nil || !token.Valid {
		return nil, errors.New("invalid token")
	}

	// Check if token is revoked
	ctx := context.Background()
	exists, err := rdb.Exists(ctx, "session:"+claims.ID).Result()
	if err != nil || exists != 1 {
		return nil, errors.New("token revoked or expired")
	}

	return claims, nil
}

func RevokeSessionToken(jti string, rdb *redis.Client) error {
	ctx := context.Background()
	return rdb.Del(ctx, "session:"+jti).Err()
}

// RevokeSession invalidates every token minted for a session, used by the
// retention sweeper when a document's session is purged.
func RevokeSession(sessionID string, rdb *redis.Client) error {
	ctx := context.Background()

	iter := rdb.Scan(ctx, 0, "session:*", 0).Iterator()
	pipe := rdb.Pipeline()

	for iter.Next(ctx) {
		key := iter.Val()
		val, _ := rdb.Get(ctx, key).Result()
		if val == sessionID {
			pipe.Del(ctx, key)
		}
	}

	_, err := pipe.Exec(ctx)
	return err
}
