package errs

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrLoad marks an unreadable, corrupt or empty document.
	ErrLoad = errors.New("load error")
	// ErrInvalidConfig marks configuration rejected before any work starts.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrAuth marks a missing or rejected provider credential. Never retried.
	ErrAuth = errors.New("auth error")
	// ErrProviderUnavailable marks network, rate-limit and server-side provider failures.
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrGeneration marks a failed question turn. The turn is not recorded.
	ErrGeneration = errors.New("generation error")
	// ErrIndexBuild marks a vector index that could not be fully built.
	ErrIndexBuild = errors.New("index build error")
	// ErrNotReady marks a session that has no document indexed yet.
	ErrNotReady = errors.New("not ready")
)

func Load(format string, args ...any) error {
	return kind(ErrLoad, format, args...)
}

func InvalidConfig(format string, args ...any) error {
	return kind(ErrInvalidConfig, format, args...)
}

func Auth(format string, args ...any) error {
	return kind(ErrAuth, format, args...)
}

func Unavailable(format string, args ...any) error {
	return kind(ErrProviderUnavailable, format, args...)
}

func IndexBuild(format string, args ...any) error {
	return kind(ErrIndexBuild, format, args...)
}

// Generation attaches ErrGeneration to err unless err is an auth failure,
// which keeps its own kind so callers stop instead of retrying.
func Generation(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrAuth) || errors.Is(err, ErrGeneration) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrGeneration, err)
}

// FromStatus classifies a provider failure by its HTTP status code.
func FromStatus(provider string, status int, err error) error {
	if err == nil {
		return nil
	}
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%s: %w: %w", provider, ErrAuth, err)
	default:
		return fmt.Errorf("%s: %w: %w", provider, ErrProviderUnavailable, err)
	}
}

// IsRetryable reports whether the user may safely re-ask after err.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrGeneration) || errors.Is(err, ErrProviderUnavailable)
}

func kind(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}
