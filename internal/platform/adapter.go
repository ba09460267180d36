// Package platform holds the outbound social-network adapters. The core
// only ever sees the Adapter interface and the error classification; all
// Graph API details stay in here.
package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sophiahq/sophia/internal/domain/draft"
)

// DefaultTimeout bounds every adapter call. A platform that hasn't
// answered in 30s is treated as a transient failure.
const DefaultTimeout = 30 * time.Second

// ErrorKind classifies adapter failures for the retry policy.
type ErrorKind int

const (
	// KindTransient failures (timeouts, 429s, 5xx) are worth retrying.
	KindTransient ErrorKind = iota
	// KindPermanent failures (auth, validation, 4xx) never succeed on
	// retry.
	KindPermanent
	// KindUnsupported marks operations the platform API does not offer.
	KindUnsupported
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	case KindUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// Error is an adapter failure with its retry classification.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Transient wraps err as a retryable adapter failure.
func Transient(op string, err error) *Error {
	return &Error{Kind: KindTransient, Op: op, Err: err}
}

// Permanent wraps err as a non-retryable adapter failure.
func Permanent(op string, err error) *Error {
	return &Error{Kind: KindPermanent, Op: op, Err: err}
}

// Unsupported marks an operation the platform cannot perform.
func Unsupported(op string, err error) *Error {
	return &Error{Kind: KindUnsupported, Op: op, Err: err}
}

// KindOf extracts the classification from an error chain. Unclassified
// errors count as transient so an unknown failure mode still gets its
// retries.
func KindOf(err error) ErrorKind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindTransient
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool { return KindOf(err) == KindTransient }

// PostContent is the platform-neutral content of one publish.
type PostContent struct {
	Copy     string
	Hashtags []string

	// ImageURL must be publicly fetchable by the platform; the API layer
	// turns local image refs into served URLs before dispatch.
	ImageURL string
}

// PostResult identifies the created post.
type PostResult struct {
	PostID string
	URL    string
}

// Adapter is one platform's publish/delete surface. Implementations are
// safe for concurrent use by the worker pool.
type Adapter interface {
	Platform() draft.Platform

	// Publish creates a post on the given account. Errors carry an
	// ErrorKind; see KindOf.
	Publish(ctx context.Context, accountID string, content PostContent) (*PostResult, error)

	// Delete removes a previously published post. Platforms whose API has
	// no delete return an Unsupported error.
	Delete(ctx context.Context, accountID, postID string) error
}

// Registry maps platforms to their adapters.
type Registry map[draft.Platform]Adapter

// For returns the adapter for a platform.
func (r Registry) For(p draft.Platform) (Adapter, error) {
	a, ok := r[p]
	if !ok {
		return nil, Permanent("adapter lookup", fmt.Errorf("no adapter for platform %q", p))
	}
	return a, nil
}

// classifyStatus maps a Graph API HTTP status to an error kind.
func classifyStatus(status int) ErrorKind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindTransient
	case status >= 500:
		return KindTransient
	default:
		return KindPermanent
	}
}
