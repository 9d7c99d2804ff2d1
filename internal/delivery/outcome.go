package delivery

import "fmt"

type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeHTTPError
	OutcomeNetworkError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeHTTPError:
		return "http_error"
	default:
		return "network_error"
	}
}

// Outcome is the terminal result of one delivery, after retries. HTTP error
// responses are terminal on the first response; only transport failures
// consume the retry budget.
type Outcome struct {
	Kind         OutcomeKind
	StatusCode   int
	ResponseBody string
	Message      string
	Attempts     int
}

func (o Outcome) Succeeded() bool {
	return o.Kind == OutcomeSuccess
}

func successOutcome(code int, body string, attempts int) Outcome {
	return Outcome{
		Kind:         OutcomeSuccess,
		StatusCode:   code,
		ResponseBody: body,
		Attempts:     attempts,
	}
}

func httpErrorOutcome(code int, body string, attempts int) Outcome {
	return Outcome{
		Kind:         OutcomeHTTPError,
		StatusCode:   code,
		ResponseBody: body,
		Message:      fmt.Sprintf("endpoint returned status %d", code),
		Attempts:     attempts,
	}
}

func networkErrorOutcome(attempts int, lastErr error) Outcome {
	return Outcome{
		Kind:     OutcomeNetworkError,
		Message:  fmt.Sprintf("delivery failed after %d attempts: %v", attempts, lastErr),
		Attempts: attempts,
	}
}
