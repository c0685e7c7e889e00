package llm

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies why a request to the completion service failed.
type Kind int

const (
	// KindUnexpected covers anything that could not be classified.
	KindUnexpected Kind = iota
	// KindConfiguration means credentials are missing; operator action is required.
	KindConfiguration
	// KindAuth means the credential exchange was rejected.
	KindAuth
	// KindTransport means the service could not be reached.
	KindTransport
	// KindAPI means the completion call returned a non-200 status or no text.
	KindAPI
	// KindRestriction means the service answered with a refusal instead of a digest.
	KindRestriction
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindAuth:
		return "auth"
	case KindTransport:
		return "transport"
	case KindAPI:
		return "api"
	case KindRestriction:
		return "restriction"
	default:
		return "unexpected"
	}
}

// Retryable reports whether repeating the same request may succeed
// without operator action.
func (k Kind) Retryable() bool {
	switch k {
	case KindTransport, KindAPI, KindRestriction:
		return true
	default:
		return false
	}
}

// Error is a classified failure of the completion service.
type Error struct {
	Kind       Kind
	Op         string // e.g. "token exchange", "completion"
	StatusCode int    // HTTP status, 0 when no response was received
	Detail     string // best-effort error text from the service
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	b.WriteString(" failure")
	if e.Op != "" {
		b.WriteString(" during ")
		b.WriteString(e.Op)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of the first *Error in err's chain,
// or KindUnexpected when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnexpected
}

// Wrap returns err unchanged when it is already classified and wraps it
// as KindUnexpected otherwise. A nil err stays nil.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: KindUnexpected, Op: op, Err: err}
}

// Describe turns a failure into the message shown to the person who asked for a digest.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	switch KindOf(err) {
	case KindConfiguration:
		return "Configuration error: " + err.Error() +
			"\nSet GIGACHAT_CLIENT_ID and GIGACHAT_CLIENT_SECRET in the .env file."
	case KindAuth:
		return "Authentication with the LLM service failed: " + err.Error() +
			"\nCheck GIGACHAT_CLIENT_ID and GIGACHAT_CLIENT_SECRET in the .env file."
	case KindTransport:
		return "Could not reach the LLM service: " + err.Error() +
			"\nCheck the network connection and try again later."
	case KindAPI:
		return "The LLM service returned an error: " + err.Error() +
			"\nTry again later."
	case KindRestriction:
		return "The LLM service refused to answer this request.\n" +
			"Try summarizing a single chat (fewer messages), wait a while and retry, " +
			"or check the content of the messages."
	default:
		return "Unexpected error: " + err.Error()
	}
}
