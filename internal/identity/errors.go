package identity

import (
	"errors"
)

// Provider error codes. The gateway pattern-matches on a small fixed set of
// these; anything else is shown to the user verbatim.
const (
	CodeEmailInUse        = "auth/email-already-in-use"
	CodeInvalidEmail      = "auth/invalid-email"
	CodeWeakPassword      = "auth/weak-password"
	CodeWrongPassword     = "auth/wrong-password"
	CodeUserNotFound      = "auth/user-not-found"
	CodeInvalidCredential = "auth/invalid-credential"
	CodePopupClosed       = "auth/popup-closed-by-user"
	CodeExpiredAction     = "auth/expired-action-code"
	CodeInvalidState      = "auth/invalid-state"
	CodeNotConfigured     = "auth/operation-not-allowed"
	CodeFederatedFailed   = "auth/federated-failed"
	CodeInternal          = "auth/internal-error"
)

// ProviderError is the {code, message} shape every provider reports failures in.
type ProviderError struct {
	Code    string
	Message string
}

func (e *ProviderError) Error() string {
	return e.Message
}

func providerErr(code, message string) error {
	return &ProviderError{Code: code, Message: message}
}

// CodeOf returns the provider code carried by err, or "" if it has none.
func CodeOf(err error) string {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// ErrValidation marks input rejected before the provider was contacted.
var ErrValidation = errors.New("validation failed")

type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

const (
	msgInvalidLogin   = "Invalid email or password"
	msgEmailInUse     = "This email is already registered. Please sign in instead."
	msgInvalidEmail   = "Please enter a valid email address"
	msgPasswordLength = "Password must be at least 6 characters"
	msgPasswordMatch  = "Passwords do not match"
	msgEmailRequired  = "Please enter your email address"
)

// SignUpMessage is the user-facing text for a failed registration.
func SignUpMessage(err error) string {
	switch CodeOf(err) {
	case CodeEmailInUse:
		return msgEmailInUse
	case CodeInvalidEmail:
		return msgInvalidEmail
	case CodeWeakPassword:
		return msgPasswordLength
	}
	return err.Error()
}

// SignInMessage is the user-facing text for a failed credential sign-in.
func SignInMessage(err error) string {
	switch CodeOf(err) {
	case CodeWrongPassword, CodeUserNotFound, CodeInvalidCredential:
		return msgInvalidLogin
	}
	return err.Error()
}
