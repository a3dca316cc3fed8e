// Package decoupled resolves shopper identity for checkout requests rendered
// on a different origin than the store.
//
// A decoupled request carries a signed cart token, whose owner claim is the
// store user id (0 for guests), and optionally a verified-email header set by
// the remote checkout. The header is never trusted alone. A guest cart is
// promoted to a user only when the shopping session holds the same email, the
// request arrives through the decoupled endpoints with the feature enabled,
// every active session-affecting plugin is on the adapted-extensions
// allowlist, and a user with that email exists.
//
// Resolution is a pure read. The only write is DetachGuestOrder, which is
// idempotent.
//
// Storage is pluggable through UserDirectory, SessionReader and OrderStore.
// MemoryStore serves tests and single-process setups; PostgresStore keeps the
// same data in Postgres with embedded goose migrations.
package decoupled
