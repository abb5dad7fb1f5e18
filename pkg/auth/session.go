package auth

import (
	"crypto/sha256"
	"net/http"

	"github.com/gorilla/sessions"
)

// SessionName is the name of the browser session cookie.
const SessionName = "tracker-session"

const sessionKeySelectedProject = "selected_project"

// SessionStore remembers which project a browser last worked in.
// Only the project id is stored; the caller's role is resolved again on every
// request and never read from the session.
type SessionStore struct {
	store *sessions.CookieStore
}

// NewSessionStore creates a signed cookie store.
//
// The secret can be any passphrase; it is SHA-256 hashed to derive a 32-byte key.
// It must be consistent across restarts and across servers behind a load balancer.
func NewSessionStore(secret string, cookie CookieSettings) *SessionStore {
	key := sha256.Sum256([]byte(secret))

	store := sessions.NewCookieStore(key[:])
	store.Options = &sessions.Options{
		Path:     "/",
		Domain:   cookie.Domain,
		MaxAge:   86400 * 30,
		HttpOnly: true,
		Secure:   cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	return &SessionStore{store: store}
}

// SelectedProject returns the project id last selected in this browser, or 0.
// A missing or tampered cookie yields 0.
func (s *SessionStore) SelectedProject(r *http.Request) int64 {
	session, err := s.store.Get(r, SessionName)
	if err != nil {
		return 0
	}
	id, ok := session.Values[sessionKeySelectedProject].(int64)
	if !ok {
		return 0
	}
	return id
}

// SelectProject records projectID as this browser's selected project.
func (s *SessionStore) SelectProject(w http.ResponseWriter, r *http.Request, projectID int64) error {
	// Get returns a usable new session alongside a decode error for a bad cookie.
	session, _ := s.store.Get(r, SessionName)
	session.Values[sessionKeySelectedProject] = projectID
	return session.Save(r, w)
}

// ClearSelection forgets the selected project, e.g. after the project is deleted.
func (s *SessionStore) ClearSelection(w http.ResponseWriter, r *http.Request) error {
	session, _ := s.store.Get(r, SessionName)
	delete(session.Values, sessionKeySelectedProject)
	return session.Save(r, w)
}
