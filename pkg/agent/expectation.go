package agent

import "strings"

// Checker decides whether collected deployment outputs plausibly satisfy the
// original request.
type Checker interface {
	Met(prompt string, outputs map[string]string) bool
}

// HeuristicChecker is a coarse token-based checker. It asks only whether any
// output key is named like a surfaced resource attribute; it does not prove
// the deployment matches the request. The bar is deliberately low because a
// stricter gate would need semantic knowledge of the request.
type HeuristicChecker struct{}

// NewHeuristicChecker returns a checker using the default token heuristic.
func NewHeuristicChecker() *HeuristicChecker {
	return &HeuristicChecker{}
}

// resourceTokens are substrings whose presence in an output key's name
// indicates a deployed resource was surfaced. Values are never inspected: a
// value like an ARN under an anonymous key says nothing about whether the
// deployment surfaced what was asked for.
var resourceTokens = []string{"stack", "output", "arn", "url", "id", "name", "endpoint"}

// Met returns false for empty outputs, true when any key name contains a
// resource token. Matching is case-insensitive, so camel-cased keys such as
// bucketName match.
func (c *HeuristicChecker) Met(_ string, outputs map[string]string) bool {
	if len(outputs) == 0 {
		return false
	}
	for key := range outputs {
		k := strings.ToLower(key)
		for _, token := range resourceTokens {
			if strings.Contains(k, token) {
				return true
			}
		}
	}
	return false
}
