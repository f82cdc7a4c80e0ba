// Package auth implements the admin session gate. A single admin credential is
// compared in plaintext, and the session is the presence of a stored token.
package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"studiobook/kvstore"
	"studiobook/models"
	"studiobook/utils"
)

// LoginPath is where anonymous admin requests are sent.
const LoginPath = "/admin/login"

// ContextUserKey holds the admin username on guarded requests.
const ContextUserKey = "adminUser"

// Gate tracks whether the admin is logged in. The state lives in the store
// under the session token key, so it survives restarts.
type Gate struct {
	store  kvstore.Store
	secret string
	now    func() time.Time

	mu    sync.RWMutex
	token string
}

// NewGate returns an anonymous gate. Call Restore to pick up a stored session.
func NewGate(store kvstore.Store, secret string) *Gate {
	return &Gate{store: store, secret: secret, now: time.Now}
}

// Restore marks the gate authenticated iff a non-empty token is stored.
// Tokens are not validated or expired here.
func (g *Gate) Restore(ctx context.Context) error {
	raw, found, err := g.store.Read(ctx, models.KeySessionToken)
	if err != nil {
		return fmt.Errorf("read session token: %w", err)
	}

	token := ""
	if found {
		token = decodeToken(raw)
	}

	g.mu.Lock()
	g.token = token
	g.mu.Unlock()

	logrus.WithField("authenticated", token != "").Info("Restored admin session state")
	return nil
}

// Login compares username and password verbatim with the stored credential.
// On a match a fresh token is stored and returned. On a mismatch nothing changes.
func (g *Gate) Login(ctx context.Context, username, password string) (string, bool, error) {
	cred, found, err := g.credential(ctx)
	if err != nil {
		return "", false, err
	}
	if !found || username != cred.Username || password != cred.Password {
		logrus.WithField("username", username).Warn("Admin login rejected")
		return "", false, nil
	}

	token, err := GenerateToken(username, g.secret, g.now())
	if err != nil {
		return "", false, err
	}
	encoded, err := json.Marshal(token)
	if err != nil {
		return "", false, err
	}
	if err := g.store.Write(ctx, models.KeySessionToken, string(encoded)); err != nil {
		return "", false, fmt.Errorf("store session token: %w", err)
	}

	g.mu.Lock()
	g.token = token
	g.mu.Unlock()

	logrus.WithField("username", username).Info("Admin logged in")
	return token, true, nil
}

// Logout removes the stored token unconditionally.
func (g *Gate) Logout(ctx context.Context) error {
	if err := g.store.Delete(ctx, models.KeySessionToken); err != nil {
		return fmt.Errorf("delete session token: %w", err)
	}
	g.mu.Lock()
	g.token = ""
	g.mu.Unlock()
	logrus.Info("Admin logged out")
	return nil
}

func (g *Gate) IsAuthenticated() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.token != ""
}

// Token returns the current session token, empty when anonymous.
func (g *Gate) Token() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.token
}

// TokenQueryParam carries the session token on websocket upgrades, since
// browsers cannot set headers on them.
const TokenQueryParam = "token"

// Guard creates a Gin middleware that only lets requests through when the
// gate is authenticated and the bearer token equals the session token.
// Anything else gets a 401 pointing at the login page.
func (g *Gate) Guard() gin.HandlerFunc {
	return func(c *gin.Context) {
		current := g.Token()
		if current == "" {
			utils.GinRedirectToLogin(c, "Authentication required", LoginPath)
			return
		}

		presented := ""
		authHeader := c.GetHeader("Authorization")
		switch {
		case authHeader != "":
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				utils.GinError(c, http.StatusBadRequest, "Authorization header format must be Bearer {token}")
				return
			}
			presented = parts[1]
		case websocket.IsWebSocketUpgrade(c.Request):
			presented = c.Query(TokenQueryParam)
		}
		if presented == "" {
			utils.GinRedirectToLogin(c, "Authorization header required", LoginPath)
			return
		}

		if subtle.ConstantTimeCompare([]byte(presented), []byte(current)) != 1 {
			utils.GinRedirectToLogin(c, "Invalid session token", LoginPath)
			return
		}

		// The stored token is the session. Restored tokens may predate the
		// current secret or not be JWTs at all, so the claims are informational.
		if claims, err := ParseToken(presented, g.secret); err == nil {
			c.Set(ContextUserKey, claims.Username)
		} else {
			logrus.WithError(err).Debug("Session token carries no readable claims")
		}
		c.Next()
	}
}

func (g *Gate) credential(ctx context.Context) (models.AdminCredential, bool, error) {
	raw, found, err := g.store.Read(ctx, models.KeyAdmin)
	if err != nil {
		return models.AdminCredential{}, false, fmt.Errorf("read admin credential: %w", err)
	}
	if !found {
		return models.AdminCredential{}, false, nil
	}
	var cred models.AdminCredential
	if err := json.Unmarshal([]byte(raw), &cred); err != nil {
		logrus.WithError(err).Warn("Stored admin credential is malformed")
		return models.AdminCredential{}, false, nil
	}
	return cred, true, nil
}

// decodeToken accepts the token either as a JSON string or as raw text.
func decodeToken(raw string) string {
	if gjson.Valid(raw) {
		if r := gjson.Parse(raw); r.Type == gjson.String {
			return strings.TrimSpace(r.String())
		}
	}
	return strings.TrimSpace(raw)
}
