// Package auth protects the cache administration endpoints.
//
// Callers present an API key header, kept only as SHA-256 hashes, or an
// HMAC-signed bearer JWT. A Chain combines both. Require wraps an
// http.Handler and answers 401, 403 or 500 before the handler runs.
package auth
