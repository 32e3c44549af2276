// Package sealer protects credentials persisted by the desk agent.
//
// Sealed blobs are self-describing: a version prefix, a random argon2id salt, an XChaCha20-Poly1305
// nonce and the ciphertext, base64 encoded. Each Seal derives a fresh key from the passphrase and
// salt, so a stolen file reveals nothing without the passphrase.
//
// Environment:
// - FRONTDESK_CREDENTIAL_KEY: passphrase that enables sealing.
//
// Fingerprint gives a short, non-reversible token identifier that is safe to log.
package sealer
