package emailerror

// ErrorType tells the delivery worker whether a send failure says something
// about the recipient or about the transport itself
type ErrorType string

const (
	// ErrorTypeRecipient is a failure tied to one address (unknown mailbox, full inbox)
	ErrorTypeRecipient ErrorType = "recipient"
	// ErrorTypeProvider is a transport-wide failure (throttling, auth, outage)
	ErrorTypeProvider ErrorType = "provider"
	// ErrorTypeUnknown counts against the transport like a provider failure
	ErrorTypeUnknown ErrorType = "unknown"
)

// ClassifiedError is a transport error labelled by the Classifier
type ClassifiedError struct {
	Original   error
	Type       ErrorType
	Provider   string
	HTTPStatus int
	Retryable  bool
}

func (e *ClassifiedError) Error() string {
	if e.Original == nil {
		return ""
	}
	return e.Original.Error()
}

func (e *ClassifiedError) Unwrap() error {
	return e.Original
}

// IsRecipientError reports a failure scoped to the recipient address
func (e *ClassifiedError) IsRecipientError() bool {
	return e.Type == ErrorTypeRecipient
}

// IsProviderError reports a failure that counts toward the transport circuit breaker
func (e *ClassifiedError) IsProviderError() bool {
	return e.Type == ErrorTypeProvider || e.Type == ErrorTypeUnknown
}
