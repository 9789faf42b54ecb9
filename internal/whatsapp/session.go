package whatsapp

import "strings"

// readyStates are the gateway connection states in which a session can
// actually deliver messages. Anything else (qr code pending, disconnected,
// starting) means the whole batch for that owner is skipped until the next
// tick.
var readyStates = map[string]struct{}{
	"connected": {},
	"inchat":    {},
	"islogged":  {},
}

// IsReady reports whether a gateway status string represents a usable
// session. Comparison is case-insensitive.
func IsReady(status string) bool {
	_, ok := readyStates[strings.ToLower(strings.TrimSpace(status))]
	return ok
}

// SessionID builds the gateway session identifier for a user, following the
// "<prefix>_<ownerID>" convention. This convention is the only channel by
// which inbound events are attributed back to an owner.
func SessionID(prefix, userID string) string {
	return prefix + "_" + userID
}

// OwnerFromSession extracts the owning user id from a session identifier.
// It returns ok=false when the identifier does not follow the convention,
// in which case attribution of the event is impossible.
func OwnerFromSession(prefix, session string) (string, bool) {
	owner, found := strings.CutPrefix(session, prefix+"_")
	if !found || owner == "" {
		return "", false
	}
	return owner, true
}

// AckRef extracts the correlatable message id from a composite transport
// identifier. ACK payloads may carry ids like
// "true_5511999999999@c.us_ABC123"; only the final underscore-separated
// segment matches the stored external id. Ids without separators are
// returned unchanged.
func AckRef(composite string) string {
	if i := strings.LastIndex(composite, "_"); i >= 0 {
		return composite[i+1:]
	}
	return composite
}
