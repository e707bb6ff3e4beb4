// Package credentials loads the flat username:password file the server
// authenticates against. Entries may hold the password in clear, as an
// argon2id hash or as a bcrypt hash.
package credentials

import (
	"bufio"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Tyrowin/relaychat/internal/chaterr"
	"golang.org/x/crypto/bcrypt"
)

// Verifier checks a username/password pair.
type Verifier interface {
	Verify(username, password string) error
}

// Store is an immutable username to secret map.
type Store struct {
	secrets map[string]string
}

var _ Verifier = (*Store)(nil)

// ErrMalformedEntry marks a credential line that is not username:secret.
var ErrMalformedEntry = errors.New("malformed credential entry")

// LoadFile reads the credential file at path.
func LoadFile(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open credential file: %w", err)
	}
	defer f.Close()

	store, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("read credential file %s: %w", path, err)
	}
	return store, nil
}

// Load parses one username:password entry per line, splitting on the first
// colon. Blank lines and # comments are skipped; an entry missing either half
// fails the load with its line number. A repeated username keeps its last
// entry.
func Load(r io.Reader) (*Store, error) {
	secrets := make(map[string]string)

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		username, secret, ok := strings.Cut(line, ":")
		if !ok || username == "" || secret == "" {
			return nil, fmt.Errorf("line %d: %w", lineNo, ErrMalformedEntry)
		}
		secrets[username] = secret
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return &Store{secrets: secrets}, nil
}

// NewStore builds a store from an in-memory map, copying it.
func NewStore(secrets map[string]string) *Store {
	copied := make(map[string]string, len(secrets))
	for username, secret := range secrets {
		copied[username] = secret
	}
	return &Store{secrets: copied}
}

// Lookup returns the stored secret for username, clear or hashed.
func (s *Store) Lookup(username string) (string, error) {
	secret, ok := s.secrets[username]
	if !ok {
		return "", chaterr.ErrUserNotFound
	}
	return secret, nil
}

// Len reports the number of entries.
func (s *Store) Len() int {
	return len(s.secrets)
}

// Usernames lists the known usernames in no particular order.
func (s *Store) Usernames() []string {
	names := make([]string, 0, len(s.secrets))
	for username := range s.secrets {
		names = append(names, username)
	}
	return names
}

// Verify returns chaterr.ErrInvalidCredentials for an unknown user or a wrong
// password; the two cases are indistinguishable to the caller.
func (s *Store) Verify(username, password string) error {
	secret, err := s.Lookup(username)
	if err != nil {
		return chaterr.ErrInvalidCredentials
	}

	match, err := Compare(password, secret)
	if err != nil || !match {
		return chaterr.ErrInvalidCredentials
	}
	return nil
}

// Compare checks password against a stored secret of any supported scheme.
func Compare(password, secret string) (bool, error) {
	switch Scheme(secret) {
	case SchemeArgon2id:
		return compareArgon2id(password, secret)
	case SchemeBcrypt:
		err := bcrypt.CompareHashAndPassword([]byte(secret), []byte(password))
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return err == nil, err
	default:
		return subtle.ConstantTimeCompare([]byte(password), []byte(secret)) == 1, nil
	}
}
