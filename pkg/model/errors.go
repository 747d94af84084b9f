package model

import "github.com/m-mizutani/goerr/v2"

// Error taxonomy of the analysis pipeline. Call sites wrap these with
// goerr.Wrap and callers match with errors.Is.
var (
	// ErrValidation rejects malformed input before any external call.
	ErrValidation = goerr.New("validation failed")

	// ErrIdentificationFailed means stage 1 exhausted its iteration
	// budget without a parseable food list. Fatal to the session.
	ErrIdentificationFailed = goerr.New("food identification failed")

	// ErrAllCredentialsExhausted means no healthy credential remains for
	// a capability. Fatal when raised before stage 2 starts; otherwise it
	// degrades only the in-flight resolution.
	ErrAllCredentialsExhausted = goerr.New("all credentials exhausted")

	// ErrRateLimited is surfaced by transports so the caller can rotate
	// credentials or abandon the call.
	ErrRateLimited = goerr.New("rate limited")

	// ErrNoCandidateFound means every search attempt for a food came
	// back empty. Isolated to one FoodResolution.
	ErrNoCandidateFound = goerr.New("no candidate found")

	// ErrInvalidBarcode rejects a barcode payload that does not match
	// its symbology's expected shape.
	ErrInvalidBarcode = goerr.New("invalid barcode payload")

	// ErrSessionNotFound is returned when a session handle is unknown.
	ErrSessionNotFound = goerr.New("session not found")
)
