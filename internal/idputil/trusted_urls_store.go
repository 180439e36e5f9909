/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package idputil

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/vasayxtx/go-glob"
)

type TrustedURLMatcher func(u *url.URL) bool

// TrustedURLStore keeps URL patterns which JWKS may be fetched from.
// Host (port included) and path of a pattern may contain glob wildcards (https://*.my-company.com/idp/*, http://127.0.0.1:*).
type TrustedURLStore struct {
	mu       sync.RWMutex
	matchers []TrustedURLMatcher
}

func NewTrustedURLStore() *TrustedURLStore {
	return &TrustedURLStore{}
}

func (s *TrustedURLStore) AddTrustedURL(urlPattern string) error {
	urlMatcher, err := makeTrustedURLMatcher(urlPattern)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.matchers = append(s.matchers, urlMatcher)
	s.mu.Unlock()
	return nil
}

// Empty returns true if no patterns were added.
func (s *TrustedURLStore) Empty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.matchers) == 0
}

func (s *TrustedURLStore) IsTrusted(rawURL string) bool {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.matchers {
		if s.matchers[i](parsedURL) {
			return true
		}
	}
	return false
}

// ValidateTrustedURLPattern reports whether the pattern can be added to TrustedURLStore.
func ValidateTrustedURLPattern(urlPattern string) error {
	_, err := makeTrustedURLMatcher(urlPattern)
	return err
}

func makeTrustedURLMatcher(urlPattern string) (TrustedURLMatcher, error) {
	// Host is cut off before parsing, url.Parse rejects wildcards in port.
	scheme, rest, ok := strings.Cut(urlPattern, "://")
	if !ok || scheme == "" {
		return nil, fmt.Errorf("trusted URL pattern %q must be absolute", urlPattern)
	}
	hostPattern, pathAndQuery := rest, ""
	if i := strings.IndexAny(rest, "/?#"); i >= 0 {
		hostPattern, pathAndQuery = rest[:i], rest[i:]
	}
	if hostPattern == "" {
		return nil, fmt.Errorf("trusted URL pattern %q must be absolute", urlPattern)
	}
	parsedURL, err := url.Parse(pathAndQuery)
	if err != nil {
		return nil, fmt.Errorf("parse trusted URL glob pattern: %w", err)
	}
	scheme = strings.ToLower(scheme)
	hostMatcher := glob.Compile(hostPattern)
	pathMatcher := glob.Compile(parsedURL.Path)
	rawQuery := parsedURL.RawQuery
	return func(u *url.URL) bool {
		return scheme == u.Scheme &&
			hostMatcher(u.Host) &&
			pathMatcher(u.Path) &&
			rawQuery == u.RawQuery
	}, nil
}
