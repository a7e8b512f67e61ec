// Package errs defines the error taxonomy shared by the resolution pipeline.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrNoIdentifier indicates the input contained no recognizable link or identifier.
	ErrNoIdentifier = errors.New("no video identifier found")
	// ErrKeyFetch indicates the signing key material could not be obtained.
	ErrKeyFetch = errors.New("upstream key fetch failed")
	// ErrVideoNotFound indicates the video does not exist or is hidden.
	ErrVideoNotFound = errors.New("video not found")
	// ErrAccessDenied indicates the upstream refused access to the video.
	ErrAccessDenied = errors.New("access denied")
	// ErrRegionRestricted indicates the video is not available in the current region.
	ErrRegionRestricted = errors.New("region restricted")
	// ErrUnderReview indicates the video is still being reviewed.
	ErrUnderReview = errors.New("under review")
	// ErrUpstream is the generic upstream failure.
	ErrUpstream = errors.New("upstream error")
	// ErrPlayback indicates every tier of the fallback ladder failed.
	ErrPlayback = errors.New("playback resolution failed")
	// ErrInvalidProxyTarget indicates a proxy target outside the allow-list.
	ErrInvalidProxyTarget = errors.New("invalid proxy target")
)

// UpstreamError carries an upstream status code together with its mapped category.
type UpstreamError struct {
	Code    int
	Message string
	Kind    error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
}

func (e *UpstreamError) Unwrap() error {
	return e.Kind
}

// PlaybackError is returned when the fallback ladder is exhausted.
type PlaybackError struct {
	Tried   []int
	LastErr error
}

func (e *PlaybackError) Error() string {
	if e.LastErr == nil {
		return fmt.Sprintf("%s: tried %v", ErrPlayback, e.Tried)
	}
	return fmt.Sprintf("%s: tried %v: %v", ErrPlayback, e.Tried, e.LastErr)
}

func (e *PlaybackError) Unwrap() error {
	return ErrPlayback
}

// Message returns the human-readable text for err: the upstream message when
// one is available, otherwise the generic category text.
func Message(err error) string {
	var ue *UpstreamError
	if errors.As(err, &ue) && ue.Message != "" {
		return ue.Message
	}
	var pe *PlaybackError
	if errors.As(err, &pe) && pe.LastErr != nil {
		return Message(pe.LastErr)
	}
	for _, kind := range []error{
		ErrNoIdentifier, ErrKeyFetch, ErrVideoNotFound, ErrAccessDenied,
		ErrRegionRestricted, ErrUnderReview, ErrPlayback, ErrInvalidProxyTarget, ErrUpstream,
	} {
		if errors.Is(err, kind) {
			return kind.Error()
		}
	}
	return "resolution failed"
}
