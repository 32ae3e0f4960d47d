package executor

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/roselinebot/roseline/internal/vndb"
)

// ErrorKind tags the failure vocabulary shared by the remote client and
// the workflows. Every workflow failure is exactly one of these.
type ErrorKind int

const (
	// BadRemote: the remote service could not be reached, written to or
	// read from. Transient; callers may re-submit the workflow.
	BadRemote ErrorKind = iota
	// BadRemoteResponse: a frame arrived but did not have the expected
	// shape or type. Not retried.
	BadRemoteResponse
	// TooMany: a fuzzy remote lookup matched more than one VN.
	TooMany
	// TooManyLocal: a local substring search matched more than one VN.
	TooManyLocal
	// UnknownVN: the resolution ladder produced no VN.
	UnknownVN
	// InvalidVNID: a non-vn reference was supplied to a VN-only workflow.
	InvalidVNID
	// Internal: anything else; never suppressed.
	Internal
)

var collapseSpace = regexp.MustCompile(`\s+`)

// Error is the tagged failure value surfaced by every workflow. The
// Error() text is the user-visible chat line.
type Error struct {
	Kind  ErrorKind
	Count int          // TooMany, TooManyLocal
	Query string       // TooMany
	Ref   vndb.RefKind // InvalidVNID
	ID    uint64       // InvalidVNID
	Desc  string       // Internal
}

func (e *Error) Error() string {
	switch e.Kind {
	case BadRemote:
		return "Error with VNDB. Forgive me, I cannot execute your request"
	case BadRemoteResponse:
		return "Bad VNDB response. Forgive me."
	case UnknownVN:
		return "No such VN could be found."
	case TooMany:
		query := collapseSpace.ReplaceAllString(e.Query, "+")
		return fmt.Sprintf("There are too many hits='%d'. Try yourself -> https://vndb.org/v/all?sq=%s", e.Count, query)
	case TooManyLocal:
		return fmt.Sprintf("Found '%d' matches in DB. Try a better query.", e.Count)
	case InvalidVNID:
		return fmt.Sprintf("%s%d is not an VN ID", e.Ref.Short(), e.ID)
	case Internal:
		return fmt.Sprintf("ごめんなさい、エラー: %s", e.Desc)
	default:
		return "ごめんなさい、エラー: unknown"
	}
}

func errBadRemote() error         { return &Error{Kind: BadRemote} }
func errBadRemoteResponse() error { return &Error{Kind: BadRemoteResponse} }
func errUnknownVN() error         { return &Error{Kind: UnknownVN} }

func errTooMany(n int, query string) error {
	return &Error{Kind: TooMany, Count: n, Query: query}
}

func errTooManyLocal(n int) error {
	return &Error{Kind: TooManyLocal, Count: n}
}

func errInvalidVNID(kind vndb.RefKind, id uint64) error {
	return &Error{Kind: InvalidVNID, Ref: kind, ID: id}
}

func errInternal(err error) error {
	return &Error{Kind: Internal, Desc: err.Error()}
}

// KindOf extracts the taxonomy tag, or Internal for untagged errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// IsTransient reports whether the failure came from losing the remote
// connection, the one case the dispatcher re-submits after a delay.
func IsTransient(err error) bool {
	return KindOf(err) == BadRemote
}
