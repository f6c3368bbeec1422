package feed

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// defaultCursorSecret is the suffix appended to cursors when Config leaves
// CursorSecret empty.
const defaultCursorSecret = "qX4wKundVr1HZg8yTe0B"

// encodeCursor wraps the store's continuation token into an opaque cursor:
// the base64 token plus the secret suffix, base64-encoded again. This is a
// passthrough device inherited from the wire protocol; the suffix only
// rejects accidentally mangled cursors and offers no real tamper
// protection. An empty token yields an empty cursor.
func encodeCursor(token []byte, secret string) string {
	if len(token) == 0 {
		return ""
	}
	inner := base64.StdEncoding.EncodeToString(token)
	return base64.StdEncoding.EncodeToString([]byte(inner + secret))
}

// decodeCursor unwraps a cursor back into the store's continuation token.
// An empty cursor yields a nil token (first page).
func decodeCursor(cursor, secret string) ([]byte, error) {
	if cursor == "" {
		return nil, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadCursor, err)
	}
	inner, ok := strings.CutSuffix(string(decoded), secret)
	if !ok {
		return nil, ErrBadCursor
	}
	token, err := base64.StdEncoding.DecodeString(inner)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadCursor, err)
	}
	return token, nil
}
