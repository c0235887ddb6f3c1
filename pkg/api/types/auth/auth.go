package auth

// Token is the response body of POST /auth/token.
type Token struct {
	AccessToken string `json:"access_token"`

	// always "bearer"
	TokenType string `json:"token_type"`

	// seconds until the token expires.
	ExpiresIn int64 `json:"expires_in,omitempty"`
}

const TokenTypeBearer = "bearer"

func (t Token) Equal(o Token) bool {
	return t.AccessToken == o.AccessToken &&
		t.TokenType == o.TokenType &&
		t.ExpiresIn == o.ExpiresIn
}
