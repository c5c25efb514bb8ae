// Package httpserver provides a reusable HTTP server with common lifecycle
// functionality for the benchmark components.
//
// The package implements a base server with standard health endpoints,
// graceful shutdown, and flexible routing, so the signer server and any
// future components share the same operational surface.
//
// # Key Components
//
//   - BaseServer: Core HTTP server with health checks and lifecycle management
//   - RouteRegistrar: Interface for components to register their routes with the server
//
// # Health and Diagnostics
//
// All servers built with BaseServer automatically include:
//
//   - Liveness check: verify the server is running (/livez)
//   - Readiness check: whether the server should receive traffic (/readyz)
//   - Drain control: prepare for graceful shutdown (/drain, /undrain)
//   - Profiling: optional pprof debugging endpoints when enabled
//
// # Usage Example
//
//	// Implement the RouteRegistrar interface for your handler
//	func (h *MyHandler) RegisterRoutes(r chi.Router) {
//	    r.Post("/session", h.handleInitSession)
//	}
//
//	srv, _ := httpserver.New(cfg, handler)
//	srv.RunInBackground()
//	defer srv.Shutdown()
package httpserver
