package devserver

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/raphaelgruber/loglens/internal/models"
)

// devTeam is the team of users configured at startup.
const devTeam = "dev"

var (
	// ErrUserExists is returned when signing up an existing user id.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidCredentials is returned for an unknown user or wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type account struct {
	password string
	profile  models.Profile
}

// Accounts holds users and the tokens issued to them.
type Accounts struct {
	mu       sync.Mutex
	users    map[string]*account
	sessions map[string]string // token -> user id
	token    string
}

// NewAccounts creates accounts for users (id -> password). A non-empty
// token is handed out by every login instead of a fresh one; the last
// user to log in then owns it.
func NewAccounts(users map[string]string, token string) *Accounts {
	a := &Accounts{
		users:    make(map[string]*account, len(users)),
		sessions: make(map[string]string),
		token:    token,
	}
	for id, pw := range users {
		a.users[id] = newAccount(id, pw, devTeam)
	}
	return a
}

func newAccount(id, password, team string) *account {
	return &account{
		password: password,
		profile: models.Profile{
			UserID:    id,
			TeamID:    team,
			CreatedAt: models.NewTimestamp(time.Now()),
		},
	}
}

// Signup adds a user.
func (a *Accounts) Signup(id, password, team string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.users[id]; ok {
		return ErrUserExists
	}
	a.users[id] = newAccount(id, password, team)
	return nil
}

// Login checks credentials and issues a token.
func (a *Accounts) Login(id, password string) (token string, profile models.Profile, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	acct, ok := a.users[id]
	if !ok || acct.password != password {
		return "", models.Profile{}, ErrInvalidCredentials
	}
	token = a.token
	if token == "" {
		token = uuid.New().String()
	}
	a.sessions[token] = id
	return token, acct.profile, nil
}

// Valid reports whether token was issued by Login.
func (a *Accounts) Valid(token string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.sessions[token]
	return ok
}

// Profile returns the profile of the user token belongs to.
func (a *Accounts) Profile(token string) (models.Profile, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	acct, ok := a.userLocked(token)
	if !ok {
		return models.Profile{}, false
	}
	return acct.profile, true
}

// UpdateProfile applies fields (display_name, email, team_id) to the
// profile of the user token belongs to.
func (a *Accounts) UpdateProfile(token string, fields map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	acct, ok := a.userLocked(token)
	if !ok {
		return ErrInvalidCredentials
	}

	next := acct.profile
	for k, v := range fields {
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("%s must be a string", k)
		}
		s = strings.TrimSpace(s)
		switch k {
		case "display_name":
			next.DisplayName = s
		case "email":
			if s != "" && !strings.Contains(s, "@") {
				return fmt.Errorf("invalid email %q", s)
			}
			next.Email = s
		case "team_id":
			if s == "" {
				return errors.New("team_id must not be empty")
			}
			next.TeamID = s
		default:
			return fmt.Errorf("unknown profile field %q", k)
		}
	}
	acct.profile = next
	return nil
}

func (a *Accounts) userLocked(token string) (*account, bool) {
	id, ok := a.sessions[token]
	if !ok {
		return nil, false
	}
	acct, ok := a.users[id]
	return acct, ok
}
