// Package handlers contains reusable HTTP building blocks for the API server.
//
// Health checks run in parallel with a per-check timeout:
//
//	checker := handlers.NewCompositeHealthChecker("v1")
//	checker.AddCheck("catalog", catalogCheck)
//	checker.AddNonCriticalCheck("progress_medium", handlers.NewPingCheck(store))
//
// The admin surface is guarded by APIKeyAuth, which compares the X-API-Key
// header against bcrypt hashes from configuration:
//
//	auth, err := handlers.NewAPIKeyAuth("X-API-Key", cfg.Auth.AdminKeyHashes)
//	protected := auth.Middleware(resetHandler)
package handlers
