package emailerror

// transportRules holds the message fragments that identify recipient and
// provider failures for one transport kind
type transportRules struct {
	recipient []string
	provider  []string
	// retryProvider reports whether a provider failure is worth retrying
	retryProvider func(errStr string) bool
	// senderIssue turns a recipient match into a provider failure
	senderIssue func(errStr string) bool
}

var rulesByTransport = map[string]transportRules{
	TransportSES: {
		recipient: []string{
			"messagerejected", "email address is not verified", "invalid recipient",
			"mailbox unavailable", "mailbox not found", "user unknown",
			"address rejected", "no recipients", "recipient rejected",
		},
		provider: []string{
			"throttling", "limitexceeded", "quota exceeded", "daily message quota",
			"serviceunavailable", "service unavailable", "accessdenied",
			"invalidclienttokenid", "signaturedoesnotmatch", "expiredtoken", "expired token",
			"account is paused", "account paused", "sending paused", "configurationset",
		},
		// credential problems need an operator, throttling clears by itself
		retryProvider: func(errStr string) bool {
			return containsAny(errStr, []string{"throttl", "quota"})
		},
		senderIssue: func(errStr string) bool {
			return containsAny(errStr, []string{"sender", "from address"}) &&
				containsAny(errStr, []string{"not verified"})
		},
	},
	TransportSMTP: {
		// 5xx replies and enhanced status codes for the mailbox
		recipient: []string{
			"550 ", "550:", "551 ", "551:", "552 ", "552:", "553 ", "553:",
			"5.1.1", "5.1.2", "5.1.3", "5.2.1", "5.2.2", "5.7.1",
			"mailbox unavailable", "mailbox not found", "user unknown", "no such user",
			"recipient rejected", "does not exist", "mailbox full", "over quota",
		},
		// 4xx replies and connection level trouble
		provider: []string{
			"421 ", "421:", "450 ", "450:", "451 ", "451:", "452 ", "452:", "4.7.1",
			"connection refused", "connection reset", "connection timeout", "timed out", "timeout",
			"tls handshake", "tls error", "ssl error",
			"authentication failed", "auth failed", "login failed",
			"service unavailable", "try again later", "temporary failure", "greylist",
		},
		retryProvider: func(string) bool { return true },
	},
}

func (r transportRules) classify(result *ClassifiedError, errStr string) bool {
	if containsAny(errStr, r.recipient) {
		result.Retryable = false
		if r.senderIssue != nil && r.senderIssue(errStr) {
			result.Type = ErrorTypeProvider
			return true
		}
		result.Type = ErrorTypeRecipient
		return true
	}
	if containsAny(errStr, r.provider) {
		result.Type = ErrorTypeProvider
		result.Retryable = r.retryProvider(errStr)
		return true
	}
	return false
}
