package routing

import (
	"fmt"
	"strings"

	"github.com/upb/chat-gateway/services/providers"
)

// FallbackPolicy reports whether a failed provider may be skipped in favor
// of the next one in the chain.
type FallbackPolicy func(err error) bool

// DefaultPolicy treats every failure as eligible for fallback. The known
// kinds are listed so that tightening the policy is a one-line change.
func DefaultPolicy() FallbackPolicy {
	return func(err error) bool {
		switch providers.KindOf(err) {
		case providers.KindRateLimited:
			return true
		case providers.KindTimeout, providers.KindConnection:
			return true
		case providers.KindServerError:
			return true
		case providers.KindAuthError:
			return true
		case providers.KindMalformed:
			return true
		default:
			return true
		}
	}
}

// StopOnPolicy falls back on every failure except those whose kind is listed
func StopOnPolicy(kinds ...providers.ErrorKind) FallbackPolicy {
	stop := make(map[providers.ErrorKind]struct{}, len(kinds))
	for _, k := range kinds {
		stop[k] = struct{}{}
	}
	return func(err error) bool {
		_, blocked := stop[providers.KindOf(err)]
		return !blocked
	}
}

// ParseKinds parses a comma separated list of error kinds
func ParseKinds(s string) ([]providers.ErrorKind, error) {
	var kinds []providers.ErrorKind
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(strings.ToLower(part))
		if part == "" {
			continue
		}
		kind := providers.ErrorKind(part)
		switch kind {
		case providers.KindRateLimited, providers.KindTimeout, providers.KindConnection,
			providers.KindServerError, providers.KindAuthError, providers.KindMalformed,
			providers.KindUnknown:
			kinds = append(kinds, kind)
		default:
			return nil, fmt.Errorf("unknown error kind %q", part)
		}
	}
	return kinds, nil
}
