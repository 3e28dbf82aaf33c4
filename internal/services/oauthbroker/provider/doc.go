// Package provider runs OAuth authorization-code flows for login providers.
//
// A Flow opens the provider's consent page in a login popup, verifies the
// signed state on the redirect, and exchanges the code with PKCE. Flows are
// the OnAuthRequest callbacks behind broker requesters.
package provider
