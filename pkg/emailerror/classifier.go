package emailerror

import (
	"regexp"
	"strconv"
	"strings"
)

// Transport kinds with dedicated classification rules
const (
	TransportSES  = "ses"
	TransportSMTP = "smtp"
)

// Classifier labels mail transport errors as recipient, provider or unknown
type Classifier struct{}

func NewClassifier() *Classifier {
	return &Classifier{}
}

// Classify labels err using the rules of the transport that produced it.
// Errors no rule recognizes fall back to the HTTP status embedded in the
// message, and to ErrorTypeUnknown when there is none.
func (c *Classifier) Classify(err error, transport string) *ClassifiedError {
	if err == nil {
		return nil
	}

	errStr := err.Error()
	kind := strings.ToLower(transport)
	result := &ClassifiedError{
		Original:   err,
		Provider:   "unknown",
		HTTPStatus: extractHTTPStatus(errStr),
		Retryable:  true,
	}

	if rules, ok := rulesByTransport[kind]; ok {
		result.Provider = kind
		if rules.classify(result, errStr) {
			return result
		}
	}

	if result.HTTPStatus > 0 {
		result.Type = classifyByHTTPStatus(result.HTTPStatus)
		result.Retryable = result.HTTPStatus >= 500 || result.HTTPStatus == 429
		return result
	}

	result.Type = ErrorTypeUnknown
	return result
}

var statusPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)status[_\s]code[:\s]*(\d{3})`), // "status code: 429"
	regexp.MustCompile(`(?i)http[/\d.]*\s*(\d{3})`),        // "HTTP/1.1 500"
	regexp.MustCompile(`[\[(](\d{3})[\])]`),                // "(429)"
}

func extractHTTPStatus(errStr string) int {
	for _, re := range statusPatterns {
		if m := re.FindStringSubmatch(errStr); len(m) >= 2 {
			if status, err := strconv.Atoi(m[1]); err == nil {
				return status
			}
		}
	}
	return 0
}

func classifyByHTTPStatus(status int) ErrorType {
	switch {
	case status == 429, status >= 500, status == 401, status == 403:
		return ErrorTypeProvider
	default:
		return ErrorTypeUnknown
	}
}

func containsAny(errStr string, patterns []string) bool {
	lower := strings.ToLower(errStr)
	for _, p := range patterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
