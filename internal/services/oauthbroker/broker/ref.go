package broker

// APIRef is a stable lookup key for wiring the broker into a registry.
type APIRef struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// Ref identifies the OAuth request broker.
var Ref = APIRef{
	ID:          "core.oauthrequest",
	Description: "Merges concurrent OAuth login requests into one user-facing authorization per provider",
}
