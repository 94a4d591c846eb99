package testutil

// Test signing key for use in tests only. 32 bytes for HMAC key material.
const TestSigningKey = "test-signing-key-1234567890123456"
