package credential

// Store loads and persists a credential Envelope. Implementations never
// fail on a missing file/row (spec.md §4.A: "never fails on a missing
// file; warn, proceed") — Load returns the zero Envelope and ok=false in
// that case, not an error.
type Store interface {
	Load() (Envelope, bool, error)
	Save(Envelope) error
}

// SQL key search order, fixed priority (spec.md §4.A). Generalised from the
// product-specific key names used upstream: a "social" (desktop-auth) key
// checked first, then current and legacy OIDC keys, each with a sibling
// device-registration key for client id/secret resolution when the
// envelope only carries a ClientIDHash.
const (
	KeySocial                  = "gateway:social:token"
	KeyOIDC                    = "gateway:oidc:token"
	KeyOIDCDeviceRegistration  = "gateway:oidc:device-registration"
	KeyLegacyOIDC              = "gateway:legacy-oidc:token"
	KeyLegacyOIDCDeviceRegistration = "gateway:legacy-oidc:device-registration"
)

// keyPriority is the fixed search order for an initial load.
var keyPriority = []string{KeySocial, KeyOIDC, KeyLegacyOIDC}
