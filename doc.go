// Package oauth is the HTTP surface of the mcp-test-kits authorization
// server: the authorize, token, revoke and register endpoints, the discovery
// documents, and the Bearer gate in front of the MCP endpoint.
//
// The flow state machine lives in package server, credentials in package
// storage and token signing in package security.
//
//	srv, err := oauth.NewServer(store, store, store, codec, &oauth.ServerConfig{AutoApprove: true}, logger)
//	h := oauth.NewHandler(srv, logger)
//	h.RegisterRoutes(mux)
//	mux.Handle("/mcp", h.Protect()(mcpHandler))
package oauth
