// Package repositories implements SQLite persistence for client-side state.
//
// Key Implementations:
//   - [KVRepository] : durable key/value store (credential, device id, drafts, listing cache)
//   - [CookieRepository] : per-host cookie persistence behind the cookie credential surface
//
// Schema is owned by the goose migrations embedded in the shared package.
package repositories
