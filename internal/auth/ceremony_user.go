package auth

import (
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

// ceremonyUser wraps User to satisfy the webauthn.User interface.
// Credentials are loaded from the store and injected before ceremonies.
type ceremonyUser struct {
	user  *User
	creds []webauthn.Credential
}

func (cu *ceremonyUser) WebAuthnID() []byte                         { return cu.user.WebAuthnUserID }
func (cu *ceremonyUser) WebAuthnName() string                       { return cu.user.Email }
func (cu *ceremonyUser) WebAuthnDisplayName() string                { return cu.user.Email }
func (cu *ceremonyUser) WebAuthnCredentials() []webauthn.Credential { return cu.creds }

// toLibraryCredentials converts stored credentials to the library's type.
func toLibraryCredentials(creds []Credential) []webauthn.Credential {
	result := make([]webauthn.Credential, len(creds))
	for i, c := range creds {
		var transport []protocol.AuthenticatorTransport
		for _, t := range c.Transport {
			transport = append(transport, protocol.AuthenticatorTransport(t))
		}
		result[i] = webauthn.Credential{
			ID:              c.ID,
			PublicKey:       c.PublicKey,
			AttestationType: c.AttestationType,
			Transport:       transport,
			Flags: webauthn.CredentialFlags{
				UserPresent:    c.Flags.UserPresent,
				UserVerified:   c.Flags.UserVerified,
				BackupEligible: c.Flags.BackupEligible,
				BackupState:    c.Flags.BackupState,
			},
			Authenticator: webauthn.Authenticator{
				AAGUID:       c.Authenticator.AAGUID,
				SignCount:    c.Authenticator.SignCount,
				CloneWarning: c.Authenticator.CloneWarning,
				Attachment:   protocol.AuthenticatorAttachment(c.Authenticator.Attachment),
			},
		}
	}
	return result
}

// fromLibraryCredential converts a verified library credential for storage.
func fromLibraryCredential(cred *webauthn.Credential, userID, name string) Credential {
	var transport []string
	for _, t := range cred.Transport {
		transport = append(transport, string(t))
	}
	return Credential{
		ID:              cred.ID,
		PublicKey:       cred.PublicKey,
		AttestationType: cred.AttestationType,
		Transport:       transport,
		Flags: Flags{
			UserPresent:    cred.Flags.UserPresent,
			UserVerified:   cred.Flags.UserVerified,
			BackupEligible: cred.Flags.BackupEligible,
			BackupState:    cred.Flags.BackupState,
		},
		Authenticator: Authenticator{
			AAGUID:       cred.Authenticator.AAGUID,
			SignCount:    cred.Authenticator.SignCount,
			CloneWarning: cred.Authenticator.CloneWarning,
			Attachment:   string(cred.Authenticator.Attachment),
		},
		UserID:    userID,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
}

// allowedDescriptors builds the allow-list for a device-initiated sign-in.
func allowedDescriptors(creds []Credential) []protocol.CredentialDescriptor {
	result := make([]protocol.CredentialDescriptor, len(creds))
	for i, c := range creds {
		var transport []protocol.AuthenticatorTransport
		for _, t := range c.Transport {
			transport = append(transport, protocol.AuthenticatorTransport(t))
		}
		result[i] = protocol.CredentialDescriptor{
			Type:         protocol.PublicKeyCredentialType,
			CredentialID: c.ID,
			Transport:    transport,
		}
	}
	return result
}
