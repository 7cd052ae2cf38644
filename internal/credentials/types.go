package credentials

// ServiceAccount is one parsed service-account key. Records are immutable
// once resolved; the private key stays PEM-encoded until a token is minted.
type ServiceAccount struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
	ProjectID   string `json:"project_id,omitempty"`
}

// OAuthClient holds the refresh-token fallback credentials. Any field may be
// empty; completeness is validated at mint time.
type OAuthClient struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// Set is an ordered collection of service accounts plus a rotation cursor.
// The cursor always stays within bounds; Advance wraps modulo the set size.
// Set does no locking of its own, callers serialize access.
type Set struct {
	accounts []ServiceAccount
	cursor   int
}

// NewSet creates a set positioned at the first account.
func NewSet(accounts []ServiceAccount) *Set {
	return &Set{accounts: accounts}
}

// Len returns the number of accounts in the set.
func (s *Set) Len() int {
	return len(s.accounts)
}

// Current returns the account at the cursor. The set must be non-empty.
func (s *Set) Current() ServiceAccount {
	return s.accounts[s.cursor]
}

// Cursor returns the current rotation position.
func (s *Set) Cursor() int {
	return s.cursor
}

// Advance moves the cursor to the next account, wrapping around at the end.
func (s *Set) Advance() {
	if len(s.accounts) == 0 {
		return
	}
	s.cursor = (s.cursor + 1) % len(s.accounts)
}
