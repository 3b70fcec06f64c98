// Package auth guards the execution API.
//
// Authentication runs as a chain of authenticators with three-outcome
// voting: each returns Yes (identity found), No (credentials present but
// invalid) or Abstain (not its kind of credential). The chain's default
// decision applies when every authenticator abstains.
//
// Middleware wraps the HTTP handler. It skips the bypass paths, rejects
// failed authentication with 401, enforces per-tier rate limits with 429
// and puts the identity and its tenant into the request context so
// execution records are tenant scoped.
package auth
