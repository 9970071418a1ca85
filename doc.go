// Package nexauth is the authentication core of the nexhub social
// backend: email/password login with purpose-scoped JWTs, email
// verification, password reset, and an optional TOTP second factor with
// AES-GCM-encrypted secret storage, single-use recovery codes, and
// attempt lockout.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build]. Per-user state lives in the
// [UserStore] collaborator and in Redis; the engine itself is immutable.
//
// # Architecture boundaries
//
// nexauth is the public surface: [Engine], [Builder], [Config], the
// collaborator interfaces, and the result types. Token signing, password
// hashing, the TOTP vault, and recovery code handling live in their own
// subpackages; the HTTP layer under httpapi/ only translates between the
// wire and Engine calls.
//
// # Token typing invariant
//
// Every token type is signed with its own secret and carries its type in
// the payload. Decoding a token at an endpoint that expects a different
// type always fails, even when the signature would verify.
package nexauth
