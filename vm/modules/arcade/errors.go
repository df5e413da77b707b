package arcade

import "errors"

// Authorization errors.
var (
	ErrNotOwner   = errors.New("caller is not the owner")
	ErrNotAllowed = errors.New("caller is not a created game")
)

// State conflicts: expected in normal operation, not worth retrying as-is.
var (
	ErrPaused                     = errors.New("paused")
	ErrAlreadyRegistered          = errors.New("player already registered")
	ErrNonceUsed                  = errors.New("nonce already used")
	ErrPlayerNotRegistered        = errors.New("player not registered")
	ErrPlayerDoesNotOwnCredential = errors.New("player does not own their credential")
	ErrGameExists                 = errors.New("game already exists")
	ErrAlreadyInitialized         = errors.New("game already initialized")
)

// Validation errors: the caller must correct its inputs.
var (
	ErrInvalidScore     = errors.New("score exceeds max score")
	ErrInvalidNonce     = errors.New("nonce out of range")
	ErrInvalidPayment   = errors.New("payment does not match price per game")
	ErrInvalidSignature = errors.New("invalid score signature")
	ErrInvalidSettings  = errors.New("invalid settings")
)

// Invariant violations during game creation.
var (
	ErrAddressMismatch        = errors.New("deployed credential address does not match prediction")
	ErrGameNotCredentialAdmin = errors.New("game is not an admin of its credential contract")
)

// Lookup failures.
var (
	ErrUnknownGame     = errors.New("unknown game")
	ErrUnknownRegistry = errors.New("unknown registry")
)
