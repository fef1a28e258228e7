package app

import "errors"

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrUsernameExists    = errors.New("username already exists")
	ErrEmailExists       = errors.New("email already exists")
	ErrInvalidCredential = errors.New("invalid username or password")
	ErrSeatLimitReached  = errors.New("company seat limit reached")
	ErrInviteInvalid     = errors.New("invite code is invalid or already used")

	ErrTeamNotFound   = errors.New("team not found")
	ErrThreadNotFound = errors.New("thread not found")
	ErrSourceNotFound = errors.New("source not found")
	ErrForbidden      = errors.New("not a member of this team")

	ErrMessageEmpty   = errors.New("message content is empty")
	ErrMessageEnqueue = errors.New("message enqueue failed")
	ErrAskInFlight    = errors.New("another question is still being answered on this thread")
)
