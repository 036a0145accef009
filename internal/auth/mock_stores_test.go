package auth

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
)

// mockUserStore is an in-memory UserStore.
type mockUserStore struct {
	mu    sync.Mutex
	users map[string]User
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{users: make(map[string]User)}
}

func (m *mockUserStore) CreateUser(user User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.ID]; ok {
		return fmt.Errorf("user %s exists", user.ID)
	}
	m.users[user.ID] = user
	return nil
}

func (m *mockUserStore) GetUser(id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (m *mockUserStore) GetUserByEmail(email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			u := u
			return &u, nil
		}
	}
	return nil, nil
}

func (m *mockUserStore) UpdateUser(user User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.ID]; !ok {
		return ErrUserNotFound
	}
	m.users[user.ID] = user
	return nil
}

func (m *mockUserStore) DeleteUser(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, id)
	return nil
}

func (m *mockUserStore) UserCount() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users), nil
}

// mockSessionStore is an in-memory SessionStore.
type mockSessionStore struct {
	mu       sync.Mutex
	sessions map[string]Session
}

func newMockSessionStore() *mockSessionStore {
	return &mockSessionStore{sessions: make(map[string]Session)}
}

func (m *mockSessionStore) CreateSession(session Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.Token] = session
	return nil
}

func (m *mockSessionStore) GetSession(token string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[token]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *mockSessionStore) DeleteSession(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
	return nil
}

func (m *mockSessionStore) DeleteSessionsForUser(userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for token, s := range m.sessions {
		if s.UserID == userID {
			delete(m.sessions, token)
		}
	}
	return nil
}

func (m *mockSessionStore) DeleteExpiredSessions() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	now := time.Now()
	for token, s := range m.sessions {
		if now.After(s.ExpiresAt) {
			delete(m.sessions, token)
			n++
		}
	}
	return n, nil
}

// mockChallengeStore is an in-memory ChallengeStore with the same
// one-active-ceremony-per-(user, purpose) behavior as the real store.
type mockChallengeStore struct {
	mu         sync.Mutex
	challenges map[string]Challenge
}

func newMockChallengeStore() *mockChallengeStore {
	return &mockChallengeStore{challenges: make(map[string]Challenge)}
}

func (m *mockChallengeStore) PutChallenge(ch Challenge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ch.UserID != "" {
		for id, existing := range m.challenges {
			if existing.UserID == ch.UserID && existing.Purpose == ch.Purpose {
				delete(m.challenges, id)
			}
		}
	}
	m.challenges[ch.ID] = ch
	return nil
}

func (m *mockChallengeStore) GetChallenge(id string) (*Challenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.challenges[id]
	if !ok {
		return nil, ErrChallengeNotFound
	}
	if time.Now().After(ch.ExpiresAt) {
		delete(m.challenges, id)
		return nil, ErrChallengeNotFound
	}
	return &ch, nil
}

func (m *mockChallengeStore) DeleteChallenge(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.challenges, id)
	return nil
}

func (m *mockChallengeStore) DeleteExpiredChallenges() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	now := time.Now()
	for id, ch := range m.challenges {
		if now.After(ch.ExpiresAt) {
			delete(m.challenges, id)
			n++
		}
	}
	return n, nil
}

func (m *mockChallengeStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.challenges)
}

// mockCredentialStore is an in-memory CredentialStore.
type mockCredentialStore struct {
	mu    sync.Mutex
	creds map[string]Credential // keyed by string(cred.ID)
	users *mockUserStore

	failCreate bool // next CreateCredential fails
}

func newMockCredentialStore(users *mockUserStore) *mockCredentialStore {
	return &mockCredentialStore{creds: make(map[string]Credential), users: users}
}

func (m *mockCredentialStore) CreateCredential(cred Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate {
		return fmt.Errorf("credential store unavailable")
	}
	m.creds[string(cred.ID)] = cred
	return nil
}

func (m *mockCredentialStore) GetCredential(credID []byte) (*Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.creds[string(credID)]
	if !ok {
		return nil, ErrCredentialNotFound
	}
	return &c, nil
}

func (m *mockCredentialStore) ListCredentialsForUser(userID string) ([]Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Credential
	for _, c := range m.creds {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockCredentialStore) GetCredentialsByIDs(credIDs [][]byte) ([]Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Credential
	for _, id := range credIDs {
		if c, ok := m.creds[string(id)]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockCredentialStore) UpdateCredentialSignCount(credID []byte, signCount uint32, cloneWarning bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.creds[string(credID)]
	if !ok {
		return ErrCredentialNotFound
	}
	c.Authenticator.SignCount = signCount
	c.Authenticator.CloneWarning = cloneWarning
	m.creds[string(credID)] = c
	return nil
}

func (m *mockCredentialStore) DeleteCredential(credID []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.creds, string(credID))
	return nil
}

func (m *mockCredentialStore) GetUserByHandle(handle []byte) (*User, error) {
	m.users.mu.Lock()
	defer m.users.mu.Unlock()
	for _, u := range m.users.users {
		if string(u.WebAuthnUserID) == string(handle) {
			u := u
			return &u, nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *mockCredentialStore) AnyCredentialsExist() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.creds) > 0, nil
}

// mockProfiles is an in-memory ProfileProvisioner.
type mockProfiles struct {
	mu         sync.Mutex
	profiles   map[string]string // profileID -> userID
	nextID     int
	failCreate bool
}

func newMockProfiles() *mockProfiles {
	return &mockProfiles{profiles: make(map[string]string)}
}

func (m *mockProfiles) CreateProfileForUser(userID, username string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate {
		return "", fmt.Errorf("profile store unavailable")
	}
	m.nextID++
	id := fmt.Sprintf("profile-%d", m.nextID)
	m.profiles[id] = userID
	return id, nil
}

func (m *mockProfiles) DeleteProfile(profileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.profiles, profileID)
	return nil
}

func (m *mockProfiles) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.profiles)
}

// testEnv bundles a Service with its mock stores.
type testEnv struct {
	svc         *Service
	users       *mockUserStore
	sessions    *mockSessionStore
	challenges  *mockChallengeStore
	credentials *mockCredentialStore
	profiles    *mockProfiles
}

func newTestEnv(t interface{ Fatalf(string, ...any) }) *testEnv {
	wa, err := webauthn.New(&webauthn.Config{
		RPID:          "localhost",
		RPDisplayName: "corvid test",
		RPOrigins:     []string{"http://localhost:8080"},
	})
	if err != nil {
		t.Fatalf("webauthn.New: %v", err)
	}

	users := newMockUserStore()
	sessions := newMockSessionStore()
	challenges := newMockChallengeStore()
	credentials := newMockCredentialStore(users)
	profiles := newMockProfiles()

	svc := NewService(ServiceConfig{
		Users:         users,
		Sessions:      sessions,
		Challenges:    challenges,
		Credentials:   credentials,
		Profiles:      profiles,
		WebAuthn:      wa,
		TokenSecret:   []byte("0123456789abcdef0123456789abcdef"),
		Log:           slog.New(slog.DiscardHandler),
		CookieSecure:  true,
		SessionExpiry: time.Hour,
		SignInURL:     "/user/signin",
	})

	return &testEnv{
		svc:         svc,
		users:       users,
		sessions:    sessions,
		challenges:  challenges,
		credentials: credentials,
		profiles:    profiles,
	}
}
