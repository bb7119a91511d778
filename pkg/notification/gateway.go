package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ErrDisabled is returned by a gateway that was built without credentials.
var ErrDisabled = errors.New("push gateway disabled")

// Message is a provider-neutral push addressed to a single device token.
type Message struct {
	Token       string
	Title       string
	Body        string
	Icon        string
	Badge       string
	Tag         string
	ClickAction string
	Data        map[string]string
}

// Result is what the provider reported for one send.
type Result struct {
	MessageID    string
	SuccessCount int
	FailureCount int
	// StatusCode is the HTTP status of the provider response, when known.
	StatusCode int
}

// Gateway relays a formatted alert to one device. A send is a single
// terminal attempt; implementations never retry.
type Gateway interface {
	Send(ctx context.Context, msg Message) (*Result, error)
}

// StringData converts an opaque data map to the string-only map push
// providers accept. Non-string values are JSON encoded.
func StringData(data map[string]interface{}) map[string]string {
	out := make(map[string]string, len(data))
	for k, v := range data {
		switch val := v.(type) {
		case string:
			out[k] = val
		case bool:
			out[k] = strconv.FormatBool(val)
		case int:
			out[k] = strconv.Itoa(val)
		case int64:
			out[k] = strconv.FormatInt(val, 10)
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case nil:
			out[k] = ""
		default:
			b, err := json.Marshal(v)
			if err != nil {
				out[k] = fmt.Sprint(v)
				continue
			}
			out[k] = string(b)
		}
	}
	return out
}
