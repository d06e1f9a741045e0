package loadtest

import (
	"bytes"
	"strconv"

	"github.com/tidwall/gjson"
)

// evaluateCheck runs a single check against a response.
func evaluateCheck(check CheckSpec, statusCode int, body []byte) bool {
	switch check.Type {
	case "status":
		want, err := strconv.Atoi(check.Equals)
		if err != nil {
			return false
		}
		return statusCode == want

	case "body-contains":
		return bytes.Contains(body, []byte(check.Contains))

	case "json":
		result := gjson.GetBytes(body, check.Path)
		if !result.Exists() {
			return false
		}
		if check.Equals == "" {
			// Existence check
			return true
		}
		return result.String() == check.Equals

	default:
		return false
	}
}
