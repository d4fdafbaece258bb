// Package directory is an in-memory IdentitySource backed by Argon2id
// password hashes. It is meant for the daemon's seeded users and for tests.
package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	tokenAuth "github.com/MrEthical07/tokenAuth"
	"github.com/MrEthical07/tokenAuth/password"
)

// ErrInvalidUser is returned by Add for a user without a name or hash.
var ErrInvalidUser = errors.New("directory: invalid user")

// User is one directory entry.
type User struct {
	Username     string
	PasswordHash string
	Roles        []string
	Disabled     bool
}

// Directory maps usernames to users. It is safe for concurrent use.
type Directory struct {
	hasher *password.Argon2

	mu    sync.RWMutex
	users map[string]User

	// dummyHash is verified for unknown users so a miss costs as much as a
	// wrong password.
	dummyHash string
}

// New returns an empty directory using hasher.
func New(hasher *password.Argon2) (*Directory, error) {
	if hasher == nil {
		return nil, errors.New("directory: nil hasher")
	}
	dummy, err := hasher.Hash("directory-timing-placeholder")
	if err != nil {
		return nil, fmt.Errorf("directory: %w", err)
	}
	return &Directory{
		hasher:    hasher,
		users:     make(map[string]User),
		dummyHash: dummy,
	}, nil
}

// Add stores u, replacing any user with the same name.
func (d *Directory) Add(u User) error {
	u.Username = strings.TrimSpace(u.Username)
	if u.Username == "" || u.PasswordHash == "" {
		return ErrInvalidUser
	}
	u.Roles = append([]string(nil), u.Roles...)

	d.mu.Lock()
	d.users[u.Username] = u
	d.mu.Unlock()
	return nil
}

// AddPassword hashes plaintext and stores the user.
func (d *Directory) AddPassword(username, plaintext string, roles ...string) error {
	hash, err := d.hasher.Hash(plaintext)
	if err != nil {
		return fmt.Errorf("directory: hash password for %q: %w", username, err)
	}
	return d.Add(User{Username: username, PasswordHash: hash, Roles: roles})
}

// Remove deletes a user. Unknown names are ignored.
func (d *Directory) Remove(username string) {
	d.mu.Lock()
	delete(d.users, username)
	d.mu.Unlock()
}

// Len returns the number of users.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.users)
}

// Authenticate implements tokenAuth.IdentitySource. Unknown users return
// tokenAuth.ErrUserNotFound, wrong passwords and disabled users
// tokenAuth.ErrInvalidCredentials. A stored hash computed with weaker
// parameters is upgraded after a successful check.
func (d *Directory) Authenticate(ctx context.Context, username, plaintext string) (tokenAuth.Identity, error) {
	if err := ctx.Err(); err != nil {
		return tokenAuth.Identity{}, err
	}

	d.mu.RLock()
	u, ok := d.users[username]
	d.mu.RUnlock()

	if !ok {
		_, _ = d.hasher.Verify(plaintext, d.dummyHash)
		return tokenAuth.Identity{}, tokenAuth.ErrUserNotFound
	}

	match, err := d.hasher.Verify(plaintext, u.PasswordHash)
	if err != nil {
		if errors.Is(err, password.ErrPasswordTooLong) {
			return tokenAuth.Identity{}, tokenAuth.ErrInvalidCredentials
		}
		return tokenAuth.Identity{}, fmt.Errorf("directory: user %q: %w", username, err)
	}
	if !match || u.Disabled {
		return tokenAuth.Identity{}, tokenAuth.ErrInvalidCredentials
	}

	d.maybeUpgrade(u, plaintext)
	return tokenAuth.NewIdentity(u.Username, u.Roles...), nil
}

func (d *Directory) maybeUpgrade(u User, plaintext string) {
	upgrade, err := d.hasher.NeedsUpgrade(u.PasswordHash)
	if err != nil || !upgrade {
		return
	}
	hash, err := d.hasher.Hash(plaintext)
	if err != nil {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.users[u.Username]; ok && cur.PasswordHash == u.PasswordHash {
		cur.PasswordHash = hash
		d.users[u.Username] = cur
	}
}

// Hash returns the stored hash of a user, for inspection and tests.
func (d *Directory) Hash(username string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[username]
	return u.PasswordHash, ok
}
