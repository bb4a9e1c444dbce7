// internal/feed/validation.go
package feed

import (
	"errors"
	"fmt"

	"wiresum/internal/security/netutil"
)

var ErrInvalidURL = errors.New("invalid feed URL")

// ValidateFeedURLs checks each configured feed URL against guard.
func ValidateFeedURLs(urls []string, guard netutil.Guard) error {
	seen := make(map[string]bool, len(urls))
	for _, u := range urls {
		if _, err := guard.CheckURL(u); err != nil {
			return fmt.Errorf("%w %q: %v", ErrInvalidURL, u, err)
		}
		if seen[u] {
			return fmt.Errorf("%w %q: listed twice", ErrInvalidURL, u)
		}
		seen[u] = true
	}
	return nil
}
