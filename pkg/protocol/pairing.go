// Package protocol defines the wire shapes of the device-pairing HTTP surface
// and the error codes shared with clients. Importable by external callers
// (the browser app and the WordPress plugin both speak these types).
package protocol

// Link statuses reported by POST /device/poll.
const (
	StatusPending               = "pending"
	StatusApproved              = "approved"
	StatusApprovedRequiresLogin = "approved_requires_login"
	StatusConsumed              = "consumed"
	StatusExpired               = "expired"
)

// DeviceStartRequest is the body of POST /device/start.
type DeviceStartRequest struct {
	TTL int `json:"ttl,omitempty"` // seconds, clamped to [60, 1800]
}

// DeviceStartResponse advertises the codes and the poll interval.
type DeviceStartResponse struct {
	DeviceCode string `json:"device_code"`
	UserCode   string `json:"user_code"`
	ExpiresIn  int    `json:"expires_in"`
	Interval   int    `json:"interval"`
}

// DeviceActivateRequest is sent by the WordPress plugin after the human
// enters the user code on the site.
type DeviceActivateRequest struct {
	UserCode      string `json:"user_code"`
	Site          string `json:"site"`
	Token         string `json:"token"`
	Write         bool   `json:"write,omitempty"`
	PluginVersion string `json:"pluginVersion,omitempty"`
}

// DeviceActivateResponse acknowledges a successful activation.
type DeviceActivateResponse struct {
	OK bool `json:"ok"`
}

// DevicePollRequest is the body of POST /device/poll.
type DevicePollRequest struct {
	DeviceCode string `json:"device_code"`
}

// DevicePollResponse reports the link status. SiteURL and WriteMode are set
// only once the status is approved or consumed.
type DevicePollResponse struct {
	Status    string `json:"status"`
	SiteURL   string `json:"siteUrl,omitempty"`
	WriteMode *bool  `json:"writeMode,omitempty"`
}

// ErrorResponse is the uniform error body for all endpoints.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
