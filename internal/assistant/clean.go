package assistant

import "strings"

// prefixesToStrip are boilerplate lead-ins some models emit before the actual
// answer.
var prefixesToStrip = []string{
	"Here's my response:",
	"My response:",
	"Response:",
	"Answer:",
}

// cleanResponse normalizes raw model output: trims whitespace, strips
// boilerplate prefixes, unwraps a fully quoted response, and enforces
// terminal punctuation.
func cleanResponse(response string) string {
	response = strings.TrimSpace(response)
	if response == "" {
		return ""
	}

	for _, prefix := range prefixesToStrip {
		if strings.HasPrefix(response, prefix) {
			response = strings.TrimSpace(response[len(prefix):])
		}
	}

	if len(response) >= 2 && strings.HasPrefix(response, `"`) && strings.HasSuffix(response, `"`) {
		response = strings.TrimSpace(response[1 : len(response)-1])
	}

	response = strings.TrimSpace(response)
	if response == "" {
		return ""
	}
	switch response[len(response)-1] {
	case '.', '!', '?', ':', ';':
	default:
		response += "."
	}
	return response
}
