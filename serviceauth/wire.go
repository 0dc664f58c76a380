package serviceauth

// Paths of the handshake endpoints relative to the API base URL.
const (
	ChallengePath = "/api/authn/service/challenge"
	TokenPath     = "/api/authn/service/token"
)

// Error codes carried in handshake error bodies.
const (
	CodeServiceNotFound      = "ServiceNotFound"
	CodeChallengeNotFound    = "ChallengeNotFound"
	CodeInvalidChallengeHash = "InvalidChallengeHash"
)

// ChallengeRequest is the body of a challenge request.
type ChallengeRequest struct {
	ServiceName string `json:"serviceName"`
}

// ChallengeResponse carries the issued nonce.
type ChallengeResponse struct {
	Challenge string `json:"challenge"`
}

// TokenRequest is the body of a token request.
type TokenRequest struct {
	ServiceName   string `json:"serviceName"`
	ChallengeHash string `json:"challengeHash"`
}

// TokenResponse carries an issued bearer token.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// ErrorResponse is the JSON error envelope used by the handshake endpoints.
type ErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
