package models

// Reply is the complete answer returned by a request gateway for one user message.
type Reply struct {
	// Text is the reply to reveal. It may be empty, in which case the caller substitutes a fallback.
	Text string
	// ArtifactURL references generated media accompanying the reply. Empty when there is none.
	ArtifactURL string
}

// GatewayError is returned by request gateways when a reply could not be obtained. Message is meant to
// be shown to the user as is.
type GatewayError struct {
	Message string
	// Timeout is set when the failure was caused by the request running out of time.
	Timeout bool

	Err error
}

func (e *GatewayError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}
