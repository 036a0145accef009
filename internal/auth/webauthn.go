package auth

import (
	"fmt"
	"time"
)

// Credential represents a stored WebAuthn passkey credential.
type Credential struct {
	ID              []byte        `json:"id"`         // credential ID (raw bytes)
	PublicKey       []byte        `json:"public_key"` // COSE-encoded public key
	AttestationType string        `json:"attestation_type"`
	Transport       []string      `json:"transport,omitempty"` // e.g. "usb", "ble", "internal"
	Flags           Flags         `json:"flags"`
	Authenticator   Authenticator `json:"authenticator"`
	UserID          string        `json:"user_id"` // links to User.ID
	Name            string        `json:"name"`    // user-friendly label (e.g. "MacBook Touch ID")
	CreatedAt       time.Time     `json:"created_at"`
}

// Flags mirrors the credential flags from go-webauthn.
type Flags struct {
	UserPresent    bool `json:"user_present"`
	UserVerified   bool `json:"user_verified"`
	BackupEligible bool `json:"backup_eligible"`
	BackupState    bool `json:"backup_state"`
}

// Authenticator holds authenticator metadata.
type Authenticator struct {
	AAGUID       []byte `json:"aaguid"`
	SignCount    uint32 `json:"sign_count"`
	CloneWarning bool   `json:"clone_warning"`
	Attachment   string `json:"attachment"` // "platform" or "cross-platform"
}

// CredentialStore is the interface for passkey credential persistence.
// Lookups by credential ID go through an exact index, never a content scan,
// so a device cookie can only resolve to credentials it actually names.
type CredentialStore interface {
	CreateCredential(cred Credential) error
	GetCredential(credID []byte) (*Credential, error)
	ListCredentialsForUser(userID string) ([]Credential, error)
	// GetCredentialsByIDs resolves a set of credential IDs (e.g. from a device
	// cookie). Unknown IDs are skipped, not errors.
	GetCredentialsByIDs(credIDs [][]byte) ([]Credential, error)
	// UpdateCredentialSignCount persists the counter after a verified assertion.
	UpdateCredentialSignCount(credID []byte, signCount uint32, cloneWarning bool) error
	DeleteCredential(credID []byte) error
	GetUserByHandle(handle []byte) (*User, error)
	AnyCredentialsExist() (bool, error)
}

// Sentinel errors for ceremony and store failures. Verification failures and
// missing records are distinct so callers can surface them differently; any
// other failure is wrapped and keeps its cause.
var (
	ErrChallengeNotFound  = fmt.Errorf("challenge not found or expired")
	ErrCredentialNotFound = fmt.Errorf("credential not found")
	ErrUserNotFound       = fmt.Errorf("user not found")
	ErrVerificationFailed = fmt.Errorf("passkey verification failed")
	ErrNoPasskeys         = fmt.Errorf("no passkeys registered")
	ErrRateLimited        = fmt.Errorf("too many attempts")
	ErrInvalidEmail       = fmt.Errorf("invalid email address")
)
