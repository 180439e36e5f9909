/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package jwks

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/acronis/go-appkit/log"
	"github.com/acronis/go-appkit/lrucache"
	"golang.org/x/sync/singleflight"

	"github.com/acronis/go-pubkeyutil/internal/idputil"
	"github.com/acronis/go-pubkeyutil/internal/jwk"
	"github.com/acronis/go-pubkeyutil/internal/metrics"
)

// DefaultCacheUpdateMinInterval is the default minimal interval between refreshes caused by the same unknown key ID.
const DefaultCacheUpdateMinInterval = time.Minute * 1

// DefaultMissingKeysCacheMaxEntries is the default number of unknown key IDs remembered by CachingClient.
const DefaultMissingKeysCacheMaxEntries = 100

// CachingClientOpts contains options for CachingClient.
type CachingClientOpts struct {
	ClientOpts

	// Fetcher is used for getting JWKS from the remote endpoint.
	// If it's nil, Client made with ClientOpts is used.
	Fetcher Fetcher

	// CacheUpdateMinInterval is a minimal interval between refreshes caused by lookups of the same unknown key ID.
	CacheUpdateMinInterval time.Duration

	// MissingKeysCacheMaxEntries is a maximal number of unknown key IDs remembered for rate limiting.
	MissingKeysCacheMaxEntries int

	// TrustedURLs is a list of URL patterns which JWKS may be fetched from.
	// Host (port included) and path may contain glob wildcards. If it's empty, any URL is allowed.
	TrustedURLs []string
}

// CachingClient fetches JWKS and keeps received keys in memory, PEM-encoded, by key ID.
//
// At most one fetch is in flight at any moment. Refresh requests arriving while a fetch is running
// don't start a new one (even if they are made for another URL), they wait for the running fetch
// and get its result. Keys are never evicted, a successful fetch overwrites keys with the same IDs.
// A failed fetch leaves previously cached keys untouched.
type CachingClient struct {
	rawClient              *Client
	fetcher                Fetcher
	logger                 log.FieldLogger
	promMetrics            *metrics.PrometheusMetrics
	trustedURLs            *idputil.TrustedURLStore
	cacheUpdateMinInterval time.Duration

	fetchMu   sync.Mutex
	fetchSeq  uint64
	pending   *pendingFetch
	lastFetch *pendingFetch

	mu          sync.RWMutex
	keys        map[string]cachedKey
	updatedAt   time.Time
	missingKeys *lrucache.LRUCache[missingKey, time.Time]

	sfGroup    singleflight.Group
	jwksURLsMu sync.RWMutex
	jwksURLs   map[string]string
}

type cachedKey struct {
	pem    string
	pubKey *rsa.PublicKey
}

// missingKey identifies a key ID that was looked up at the JWKS URL but wasn't found there.
type missingKey struct {
	url   string
	keyID string
}

// pendingFetch is a single fetch shared by all refresh requests made while it's running.
// err may be read only after done is closed.
type pendingFetch struct {
	seq     uint64
	url     string
	done    chan struct{}
	err     error
	waiters int
	awaited map[missingKey]struct{} // keys waited by lookups, remembered as missing if the fetch doesn't bring them
}

// NewCachingClient returns a new CachingClient with default options.
func NewCachingClient() (*CachingClient, error) {
	return NewCachingClientWithOpts(CachingClientOpts{})
}

// NewCachingClientWithOpts returns a new CachingClient with options.
func NewCachingClientWithOpts(opts CachingClientOpts) (*CachingClient, error) {
	if opts.CacheUpdateMinInterval <= 0 {
		opts.CacheUpdateMinInterval = DefaultCacheUpdateMinInterval
	}
	if opts.MissingKeysCacheMaxEntries <= 0 {
		opts.MissingKeysCacheMaxEntries = DefaultMissingKeysCacheMaxEntries
	}

	rawClient := NewClientWithOpts(opts.ClientOpts)
	promMetrics := metrics.GetPrometheusMetrics(opts.PrometheusLibInstanceLabel, "jwks_caching_client")

	missingKeys, err := lrucache.New[missingKey, time.Time](opts.MissingKeysCacheMaxEntries, promMetrics.MissingKeysCache)
	if err != nil {
		return nil, fmt.Errorf("new lru cache for missing keys: %w", err)
	}

	trustedURLs := idputil.NewTrustedURLStore()
	for _, urlPattern := range opts.TrustedURLs {
		if err = trustedURLs.AddTrustedURL(urlPattern); err != nil {
			return nil, fmt.Errorf("add trusted JWKS URL: %w", err)
		}
	}

	var fetcher Fetcher = rawClient
	if opts.Fetcher != nil {
		fetcher = opts.Fetcher
	}

	return &CachingClient{
		rawClient:              rawClient,
		fetcher:                fetcher,
		logger:                 rawClient.logger,
		promMetrics:            promMetrics,
		trustedURLs:            trustedURLs,
		cacheUpdateMinInterval: opts.CacheUpdateMinInterval,
		keys:                   make(map[string]cachedKey),
		missingKeys:            missingKeys,
		jwksURLs:               make(map[string]string),
	}, nil
}

// RetrievePublicKeys refreshes cached keys from JWKS available by passed URL.
// If another refresh is already running, no new request is made, and the result of the running one is returned.
// If ctx is done before the refresh finishes, ctx.Err() is returned, but the refresh itself is not canceled.
func (cc *CachingClient) RetrievePublicKeys(ctx context.Context, jwksURL string) error {
	pf, err := cc.startOrJoinFetch(jwksURL)
	if err != nil {
		return err
	}
	return waitFetch(ctx, pf)
}

// RetrievePublicKeysAsync is the same as RetrievePublicKeys, but it doesn't block.
// Returned channel receives exactly one value (nil on success) when the refresh finishes.
func (cc *CachingClient) RetrievePublicKeysAsync(jwksURL string) <-chan error {
	errCh := make(chan error, 1)
	pf, err := cc.startOrJoinFetch(jwksURL)
	if err != nil {
		errCh <- err
		return errCh
	}
	go func() {
		<-pf.done
		errCh <- pf.err
	}()
	return errCh
}

// GetPublicKeyPEMByKeyID returns PEM-encoded RSA public key from the cache.
// It never makes requests and never waits for the running refresh,
// so false is returned for any key ID until the first successful refresh that contains it finishes.
func (cc *CachingClient) GetPublicKeyPEMByKeyID(keyID string) (string, bool) {
	key, found := cc.getKey(keyID)
	return key.pem, found
}

// GetPublicKeyPEM returns PEM-encoded RSA public key by key ID.
// If the key is not cached, keys are refreshed from passed URL,
// but not more often than once in CacheUpdateMinInterval for the same unknown key ID.
func (cc *CachingClient) GetPublicKeyPEM(ctx context.Context, jwksURL, keyID string) (string, error) {
	key, err := cc.getKeyOrRefresh(ctx, jwksURL, keyID)
	if err != nil {
		return "", err
	}
	return key.pem, nil
}

// GetRSAPublicKey works like GetPublicKeyPEM but returns decoded *rsa.PublicKey.
// The last one can be used for verifying JWT signature.
func (cc *CachingClient) GetRSAPublicKey(ctx context.Context, jwksURL, keyID string) (interface{}, error) {
	key, err := cc.getKeyOrRefresh(ctx, jwksURL, keyID)
	if err != nil {
		return nil, err
	}
	return key.pubKey, nil
}

// ResolveJWKSURL returns JWKS URL of the issuer from its OpenID configuration.
// Discovered URLs are remembered, concurrent calls for the same issuer make a single request.
func (cc *CachingClient) ResolveJWKSURL(ctx context.Context, issuerURL string) (string, error) {
	cc.jwksURLsMu.RLock()
	jwksURL, found := cc.jwksURLs[issuerURL]
	cc.jwksURLsMu.RUnlock()
	if found {
		return jwksURL, nil
	}

	res, err, _ := cc.sfGroup.Do(issuerURL, func() (interface{}, error) {
		cc.jwksURLsMu.RLock()
		knownURL, known := cc.jwksURLs[issuerURL]
		cc.jwksURLsMu.RUnlock()
		if known {
			return knownURL, nil
		}
		discoveredURL, discoverErr := cc.rawClient.DiscoverJWKSURL(ctx, issuerURL)
		if discoverErr != nil {
			return "", discoverErr
		}
		cc.jwksURLsMu.Lock()
		cc.jwksURLs[issuerURL] = discoveredURL
		cc.jwksURLsMu.Unlock()
		return discoveredURL, nil
	})
	if err != nil {
		cc.logger.Error(fmt.Sprintf("discovering JWKS URL error (issuer_url: %s)", issuerURL), log.Error(err))
		return "", err
	}
	return res.(string), nil
}

// InFlight reports whether a refresh is running now.
func (cc *CachingClient) InFlight() bool {
	cc.fetchMu.Lock()
	defer cc.fetchMu.Unlock()
	return cc.pending != nil
}

// Len returns the number of cached keys.
func (cc *CachingClient) Len() int {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return len(cc.keys)
}

// KeyIDs returns sorted IDs of cached keys.
func (cc *CachingClient) KeyIDs() []string {
	cc.mu.RLock()
	keyIDs := make([]string, 0, len(cc.keys))
	for keyID := range cc.keys {
		keyIDs = append(keyIDs, keyID)
	}
	cc.mu.RUnlock()
	sort.Strings(keyIDs)
	return keyIDs
}

// UpdatedAt returns the time of the last successful refresh. Zero time is returned if there was none.
func (cc *CachingClient) UpdatedAt() time.Time {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return cc.updatedAt
}

func (cc *CachingClient) getKey(keyID string) (cachedKey, bool) {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	key, found := cc.keys[keyID]
	return key, found
}

func (cc *CachingClient) getKeyOrRefresh(ctx context.Context, jwksURL, keyID string) (cachedKey, error) {
	seenSeq := cc.lastFetchSeq()
	if key, found := cc.getKey(keyID); found {
		return key, nil
	}
	if missedAt, missed := cc.missingKeys.Get(missingKey{jwksURL, keyID}); missed &&
		time.Since(missedAt) < cc.cacheUpdateMinInterval {
		return cachedKey{}, &JWKNotFoundError{URL: jwksURL, KeyID: keyID}
	}

	if err := cc.refreshUnlessRefreshedSince(ctx, jwksURL, keyID, seenSeq); err != nil {
		return cachedKey{}, err
	}
	if key, found := cc.getKey(keyID); found {
		return key, nil
	}
	cc.missingKeys.Add(missingKey{jwksURL, keyID}, time.Now())
	return cachedKey{}, &JWKNotFoundError{URL: jwksURL, KeyID: keyID}
}

func (cc *CachingClient) lastFetchSeq() uint64 {
	cc.fetchMu.Lock()
	defer cc.fetchMu.Unlock()
	if cc.lastFetch == nil {
		return 0
	}
	return cc.lastFetch.seq
}

// refreshUnlessRefreshedSince doesn't start a new fetch if some fetch has finished after seenSeq was observed,
// the result of that fetch is returned instead.
func (cc *CachingClient) refreshUnlessRefreshedSince(
	ctx context.Context, jwksURL string, keyID string, seenSeq uint64,
) error {
	if !cc.isTrustedURL(jwksURL) {
		return &UntrustedURLError{URL: jwksURL}
	}
	cc.fetchMu.Lock()
	if cc.pending == nil && cc.lastFetch != nil && cc.lastFetch.seq != seenSeq {
		err := cc.lastFetch.err
		cc.fetchMu.Unlock()
		return err
	}
	pf := cc.startOrJoinFetchLocked(jwksURL, keyID)
	cc.fetchMu.Unlock()
	return waitFetch(ctx, pf)
}

func (cc *CachingClient) startOrJoinFetch(jwksURL string) (*pendingFetch, error) {
	if !cc.isTrustedURL(jwksURL) {
		return nil, &UntrustedURLError{URL: jwksURL}
	}
	cc.fetchMu.Lock()
	defer cc.fetchMu.Unlock()
	return cc.startOrJoinFetchLocked(jwksURL, ""), nil
}

// startOrJoinFetchLocked must be called with fetchMu held.
func (cc *CachingClient) startOrJoinFetchLocked(jwksURL string, keyID string) *pendingFetch {
	if cc.pending != nil {
		cc.pending.waiters++
		if keyID != "" {
			cc.pending.awaited[missingKey{jwksURL, keyID}] = struct{}{}
		}
		cc.promMetrics.IncKeysRefreshJoined()
		if cc.pending.url != jwksURL {
			cc.logger.Debug(fmt.Sprintf("joining running refresh from %s instead of %s", cc.pending.url, jwksURL))
		}
		return cc.pending
	}
	cc.fetchSeq++
	pf := &pendingFetch{
		seq: cc.fetchSeq, url: jwksURL, done: make(chan struct{}), waiters: 1, awaited: make(map[missingKey]struct{}),
	}
	if keyID != "" {
		pf.awaited[missingKey{jwksURL, keyID}] = struct{}{}
	}
	cc.pending = pf
	go cc.runFetch(pf)
	return pf
}

func (cc *CachingClient) runFetch(pf *pendingFetch) {
	// Once started, the fetch can't be canceled by any waiter, it's limited by the HTTP client timeout only.
	err := cc.fetchAndStore(context.Background(), pf.url)

	cc.fetchMu.Lock()
	if err == nil {
		now := time.Now()
		for mk := range pf.awaited {
			if _, found := cc.getKey(mk.keyID); !found {
				cc.missingKeys.Add(mk, now)
			}
		}
	}
	pf.err = err
	cc.pending = nil
	cc.lastFetch = pf
	waiters := pf.waiters
	cc.fetchMu.Unlock()
	close(pf.done)

	if err == nil {
		cc.logger.Info(fmt.Sprintf("public keys refreshed (jwks_url: %s, waiters: %d)", pf.url, waiters))
	}
}

func (cc *CachingClient) fetchAndStore(ctx context.Context, jwksURL string) error {
	keySet, err := cc.fetcher.FetchKeySet(ctx, jwksURL)
	if err != nil {
		var fetchErr *FetchError
		if !errors.As(err, &fetchErr) {
			err = &FetchError{Inner: err, URL: jwksURL}
		}
		cc.promMetrics.IncKeysRefreshes(metrics.KeysRefreshResultFetchError)
		cc.logger.Error(fmt.Sprintf("fetching public keys error (jwks_url: %s)", jwksURL), log.Error(err))
		return err
	}

	fetched := make(map[string]cachedKey, len(keySet.Keys))
	for _, entry := range keySet.Keys {
		if !entry.IsRSA() {
			cc.logger.Warn(fmt.Sprintf("JWK (kid: %s, jwks_url: %s) with unsupported key type %q is skipped",
				entry.KeyID, jwksURL, entry.KeyType))
			continue
		}
		pubKey, decodeErr := jwk.DecodeRSAPublicKey(entry.Modulus, entry.Exponent)
		if decodeErr != nil {
			encErr := &EncodingError{Inner: decodeErr, KeyID: entry.KeyID}
			cc.promMetrics.IncKeysRefreshes(metrics.KeysRefreshResultEncodingError)
			cc.logger.Error(fmt.Sprintf("encoding public key error (jwks_url: %s)", jwksURL), log.Error(encErr))
			return encErr
		}
		fetched[entry.KeyID] = cachedKey{pem: encodePublicKeyPEM(pubKey), pubKey: pubKey}
	}

	cc.mu.Lock()
	for keyID, key := range fetched {
		cc.keys[keyID] = key
	}
	cc.updatedAt = time.Now()
	cc.mu.Unlock()

	cc.promMetrics.IncKeysRefreshes(metrics.KeysRefreshResultOK)
	return nil
}

func (cc *CachingClient) isTrustedURL(jwksURL string) bool {
	return cc.trustedURLs.Empty() || cc.trustedURLs.IsTrusted(jwksURL)
}

func waitFetch(ctx context.Context, pf *pendingFetch) error {
	select {
	case <-pf.done:
		return pf.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
