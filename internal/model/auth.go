package model

// Auth error codes returned alongside 401 responses so clients can
// distinguish an expired token (refresh and retry) from a bad one.
const (
	CodeTokenExpired = "TOKEN_EXPIRED"
	CodeTokenInvalid = "TOKEN_INVALID"
)
