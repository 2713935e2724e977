package digest

// CredentialStore is an immutable username → shared secret mapping.
type CredentialStore struct {
	secrets map[string]string
}

// NewCredentialStore copies users into a new store. Empty usernames are
// dropped so that a reply without a username can never match.
func NewCredentialStore(users map[string]string) *CredentialStore {
	secrets := make(map[string]string, len(users))
	for u, s := range users {
		if u == "" {
			continue
		}
		secrets[u] = s
	}
	return &CredentialStore{secrets: secrets}
}

// Secret returns the shared secret for username.
func (s *CredentialStore) Secret(username string) (string, bool) {
	secret, ok := s.secrets[username]
	return secret, ok
}

// Len returns the number of known users.
func (s *CredentialStore) Len() int {
	return len(s.secrets)
}
