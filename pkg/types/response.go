package types

// SuccessEnvelope wraps every successful API payload so clients always
// unmarshal the same top-level shape.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the wire form of a coded error. Details carries
// machine-readable context such as coupon rejection reasons or the missing
// checkout selections.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorEnvelope wraps APIError under a stable "error" key.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
