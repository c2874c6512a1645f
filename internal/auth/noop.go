package auth

// NewNoOpAuthenticator creates an Authenticator that bypasses all authentication.
// This should ONLY be used for local development.
func NewNoOpAuthenticator() *Authenticator {
	return &Authenticator{} // nil template marks NoOp mode
}

// IsNoOp returns true if this is a NoOp authenticator
func (a *Authenticator) IsNoOp() bool {
	return a.template == nil
}
