package domain

// Tokens is the opaque bearer token pair for a session.
type Tokens struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Session is the authenticated identity plus its token pair.
type Session struct {
	User   User   `json:"user"`
	Tokens Tokens `json:"tokens"`
}

// Authenticated reports whether the session carries a usable access token.
func (s *Session) Authenticated() bool {
	return s != nil && s.Tokens.Access != ""
}
