package mlbridge

import (
	"encoding/base64"
	"fmt"
	"regexp"
)

// bridgedMarkerPattern matches the hidden marker the bridge appends to
// forge comments it posted from inbound list mail.
var bridgedMarkerPattern = regexp.MustCompile(`<!-- Bridged id \(([A-Za-z0-9+/=]+)\) -->`)

// BridgedMarker renders the hidden marker for a Message-ID.
func BridgedMarker(messageID string) string {
	encoded := base64.StdEncoding.EncodeToString([]byte(messageID))
	return fmt.Sprintf("<!-- Bridged id (%s) -->", encoded)
}

// BridgedIDs extracts the Message-IDs marked in a comment body. Markers
// that fail to decode are skipped.
func BridgedIDs(body string) []string {
	var ids []string
	for _, m := range bridgedMarkerPattern.FindAllStringSubmatch(body, -1) {
		decoded, err := base64.StdEncoding.DecodeString(m[1])
		if err != nil {
			continue
		}
		ids = append(ids, string(decoded))
	}
	return ids
}
