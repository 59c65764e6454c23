package auth

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CreateSession writes the signed cookie for a user. token is the tracked
// session token already persisted by the caller; it must not be empty.
func (sm *SessionManager) CreateSession(w http.ResponseWriter, r *http.Request, userID primitive.ObjectID, role, token string) error {
	if token == "" {
		return &SessionConfigError{Message: "session token is required"}
	}

	sess, err := sm.store.Get(r, sm.name)
	if err != nil {
		sess, _ = sm.store.New(r, sm.name)
	}

	sess.Values[isAuthKey] = true
	sess.Values[userIDKey] = userID.Hex()
	sess.Values[userRoleKey] = role
	sess.Values[sessionTokenKey] = token
	return sess.Save(r, w)
}

// GenerateSessionToken returns a random URL-safe token.
func GenerateSessionToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// DestroySession expires the cookie with a single Set-Cookie header.
func (sm *SessionManager) DestroySession(w http.ResponseWriter, r *http.Request) {
	sess, err := sm.store.Get(r, sm.name)
	if err != nil {
		return
	}
	signOut(sess)
	sess.Options.MaxAge = -1
	_ = sess.Save(r, w)
}
