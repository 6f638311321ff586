package automation

import "errors"

var (
	// ErrMissingCredentials is returned before any browser resource is
	// acquired when the portal user or password is absent.
	ErrMissingCredentials = errors.New("missing portal credentials (PORTAL_USER / PORTAL_PASS)")

	// ErrLoginTimeout means the portal never reached the authenticated
	// landing state within the login wait budget.
	ErrLoginTimeout = errors.New("portal did not reach authenticated landing state")

	// ErrTransitionFailed means a navigation step exhausted its click retry
	// budget without observing the expected next-state marker.
	ErrTransitionFailed = errors.New("navigation transition failed")
)
