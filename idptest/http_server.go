/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package idptest

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/acronis/go-appkit/testutil"
)

const (
	OpenIDConfigurationPath = "/.well-known/openid-configuration"
	JWKSEndpointPath        = "/idp/keys"
)

const localhostWithDynamicPortAddr = "127.0.0.1:0"

// HTTPServerOption is an option for HTTPServer.
type HTTPServerOption func(s *HTTPServer)

// WithHTTPAddress is an option to set HTTP server address.
func WithHTTPAddress(addr string) HTTPServerOption {
	return func(s *HTTPServer) {
		s.addr.Store(addr)
	}
}

// WithHTTPEndpointPaths is an option to set custom paths for different IDP endpoints.
func WithHTTPEndpointPaths(paths HTTPPaths) HTTPServerOption {
	return func(s *HTTPServer) {
		s.paths = paths
	}
}

// WithHTTPKeysHandler is an option to set custom handler for GET /idp/keys.
// Otherwise, JWKSHandler will be used.
func WithHTTPKeysHandler(handler http.Handler) HTTPServerOption {
	return func(s *HTTPServer) {
		s.KeysHandler = handler
	}
}

// WithHTTPPublicJWKS is an option to set public JWKS for JWKSHandler which will be used for GET /idp/keys.
func WithHTTPPublicJWKS(keys []PublicJWK) HTTPServerOption {
	return func(s *HTTPServer) {
		s.KeysHandler = &JWKSHandler{PublicJWKS: keys}
	}
}

// WithOpenIDCustomURL is an option to set the base URL used in the OpenID configuration response
// instead of the server's own one.
func WithOpenIDCustomURL(u *url.URL) HTTPServerOption {
	return func(s *HTTPServer) {
		s.openIDCustomURL = u
	}
}

// WithHTTPMiddleware is an option to wrap the server's router with middleware.
func WithHTTPMiddleware(mw func(http.Handler) http.Handler) HTTPServerOption {
	return func(s *HTTPServer) {
		s.middleware = mw
	}
}

// HTTPPaths contains paths for different IDP endpoints.
type HTTPPaths struct {
	OpenIDConfiguration string
	JWKS                string
}

// HTTPServer is a mock IDP server for testing purposes.
type HTTPServer struct {
	*http.Server
	addr                       atomic.Value
	middleware                 func(http.Handler) http.Handler
	paths                      HTTPPaths
	openIDCustomURL            *url.URL
	KeysHandler                http.Handler
	OpenIDConfigurationHandler http.Handler
	Router                     *http.ServeMux
	afterListenCallbacks       []func()
}

// NewHTTPServer creates a new HTTPServer with provided options.
func NewHTTPServer(options ...HTTPServerOption) *HTTPServer {
	s := &HTTPServer{}
	for _, opt := range options {
		opt(s)
	}

	if s.KeysHandler == nil {
		s.KeysHandler = &JWKSHandler{}
	}

	if s.paths.OpenIDConfiguration == "" {
		s.paths.OpenIDConfiguration = OpenIDConfigurationPath
	}
	if s.paths.JWKS == "" {
		s.paths.JWKS = JWKSEndpointPath
	}
	openIDCfgHandler := &OpenIDConfigurationHandler{}
	s.OpenIDConfigurationHandler = openIDCfgHandler
	s.afterListenCallbacks = append(s.afterListenCallbacks, func() {
		baseURL := s.URL()
		if s.openIDCustomURL != nil {
			baseURL = s.openIDCustomURL.String()
		}
		openIDCfgHandler.Issuer = baseURL
		openIDCfgHandler.JWKSURL = baseURL + s.paths.JWKS
	})

	s.Router = http.NewServeMux()
	s.Router.Handle(s.paths.OpenIDConfiguration, s.OpenIDConfigurationHandler)
	s.Router.Handle(s.paths.JWKS, s.KeysHandler)

	// nolint:gosec // This server is used for testing purposes only.
	s.Server = &http.Server{Handler: s.Router}
	if s.middleware != nil {
		s.Server.Handler = s.middleware(s.Router)
	}

	return s
}

// URL method returns the URL of the server.
func (s *HTTPServer) URL() string {
	if srvURL := s.addr.Load(); srvURL != nil {
		return "http://" + srvURL.(string)
	}
	return ""
}

// JWKSURL returns the URL of the JWKS endpoint.
func (s *HTTPServer) JWKSURL() string {
	return s.URL() + s.paths.JWKS
}

// Start starts the HTTPServer.
func (s *HTTPServer) Start() error {
	addr, ok := s.addr.Load().(string)
	if !ok {
		addr = localhostWithDynamicPortAddr
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen tcp: %w", err)
	}
	s.addr.Store(ln.Addr().String())

	for _, cb := range s.afterListenCallbacks {
		cb()
	}

	go func() { _ = s.Server.Serve(ln) }()

	return nil
}

// StartAndWaitForReady starts the server waits for the server to start listening.
func (s *HTTPServer) StartAndWaitForReady(timeout time.Duration) error {
	if err := s.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	return testutil.WaitListeningServer(s.addr.Load().(string), timeout)
}
