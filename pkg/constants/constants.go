// Package constants defines system-wide constants for the keytrust service.
// This package provides type-safe constant definitions used across all modules.
package constants

import "time"

// ================================================================================
// JWT Algorithm Constants
// ================================================================================

// JWTAlgorithm represents the signing algorithm for JWT tokens
type JWTAlgorithm string

const (
	// AlgorithmRS256 represents RSA signature with SHA-256
	AlgorithmRS256 JWTAlgorithm = "RS256"
)

// DefaultJWTAlgorithm is the algorithm every signing key is minted for
const DefaultJWTAlgorithm = AlgorithmRS256

// RSAKeySize is the modulus size in bits for generated signing keys
const RSAKeySize = 2048

// ================================================================================
// Key Lifecycle Constants
// ================================================================================

// KeyState is the derived lifecycle state of a signing key
type KeyState string

const (
	// KeyStateActive means the key signs new tokens and verifies existing ones
	KeyStateActive KeyState = "active"

	// KeyStateSuperseded means a newer key signs, this one still verifies until expiry
	KeyStateSuperseded KeyState = "superseded"

	// KeyStateExpired means the key is no longer trusted for anything
	KeyStateExpired KeyState = "expired"
)

const (
	// DefaultKeyValidity is how long a freshly minted key stays trusted (90 days)
	DefaultKeyValidity = 90 * 24 * time.Hour

	// DefaultRotationAdvance triggers a rotation this long before the active key expires (7 days)
	DefaultRotationAdvance = 7 * 24 * time.Hour

	// DefaultKeyCacheTTL bounds the lifetime of the shared verification key set
	DefaultKeyCacheTTL = 24 * time.Hour

	// DefaultPurgeRetention keeps expired keys around this long before deletion (30 days)
	DefaultPurgeRetention = 30 * 24 * time.Hour

	// DefaultSigningKeyCacheTTL bounds the in-process signing key cache
	DefaultSigningKeyCacheTTL = time.Minute

	// DefaultRotationLockTTL bounds how long one instance may hold the rotation lock
	DefaultRotationLockTTL = 30 * time.Second
)

// ================================================================================
// Token Constants
// ================================================================================

const (
	// DefaultTokenIssuer is the iss claim stamped on every token
	DefaultTokenIssuer = "nexus-app"

	// DefaultTokenTTL is the default access token lifetime
	DefaultTokenTTL = 2 * time.Hour

	// BearerPrefix is the Authorization header scheme
	BearerPrefix = "Bearer "

	// ClaimUserID carries the numeric/opaque user identifier
	ClaimUserID = "user_id"

	// ClaimAuthorities carries the space-delimited authority list
	ClaimAuthorities = "authorities"
)

// ================================================================================
// Scheduler and Timeout Constants
// ================================================================================

const (
	DefaultRotationCheckInterval = time.Hour
	DefaultPurgeInterval         = 24 * time.Hour
	DefaultStoreTimeout          = 3 * time.Second
	DefaultCacheTimeout          = 500 * time.Millisecond
)

// ================================================================================
// Cache Key Constants
// ================================================================================

const (
	// CacheKeyVerificationKeySet holds the serialized trusted key set
	CacheKeyVerificationKeySet = "keytrust:keyset:verification"

	// CacheKeyRevokedPrefix prefixes revoked token ids
	CacheKeyRevokedPrefix = "keytrust:revoked:"

	// CacheKeyRotationLock guards key creation across instances
	CacheKeyRotationLock = "keytrust:lock:rotation"

	// LocalKeySigning is the in-process signing key slot
	LocalKeySigning = "signing"
)

// ================================================================================
// Permission Constants
// ================================================================================

const (
	PermissionKeyQuery   = "system:key:query"
	PermissionKeyRotate  = "system:key:rotate"
	PermissionTokenIssue = "system:token:issue"
)

// ================================================================================
// Event Constants
// ================================================================================

// KeyEventType names events published on the key events topic
type KeyEventType string

const (
	KeyEventRotated     KeyEventType = "key.rotated"
	KeyEventDeactivated KeyEventType = "key.deactivated"
	KeyEventPurged      KeyEventType = "key.purged"
	KeyEventRevoked     KeyEventType = "token.revoked"
)

// DefaultKeyEventsTopic is the Kafka topic carrying key events
const DefaultKeyEventsTopic = "keytrust.key-events"

// ================================================================================
// Logging Constants
// ================================================================================

// LogLevel represents the severity level of log messages
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// ================================================================================
// Context Key Constants
// ================================================================================

// ContextKey represents keys used in context.Context
type ContextKey string

const (
	// ContextKeyRequestID is the key for request ID in context
	ContextKeyRequestID ContextKey = "request_id"

	// ContextKeyTraceID is the key for distributed trace ID in context
	ContextKeyTraceID ContextKey = "trace_id"

	// ContextKeyIdentity is the key for the authenticated identity
	ContextKeyIdentity ContextKey = "identity"
)

// GinKeyIdentity is the gin.Context key for the authenticated identity
const GinKeyIdentity = "identity"

// ================================================================================
// Service Constants
// ================================================================================

const (
	ServiceName    = "keytrust"
	ServiceVersion = "1.0.0"
	EnvProduction  = "production"
)

//Personal.AI order the ending
