package token

const (
	// Opaque handles have different lengths so they are not confused when
	// read in logs.
	authorizationCodeLength int = 30
	accessTokenLength       int = 40
	// refreshTokenLength has an unusual value so to avoid refresh tokens and
	// opaque access token to be confused.
	refreshTokenLength int = 99
	deviceCodeLength   int = 50
	authReqIDLength    int = 50

	// slowDownIncrementSecs is added to the polling interval of a device
	// or CIBA request every time the client polls too fast.
	slowDownIncrementSecs int = 5
)
