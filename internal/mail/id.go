package mail

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// MessageID derives the deterministic Message-ID for an archive item.
// Recomputing it from the same (entity id, item id) always yields the same
// value, which is what lets the archive reader recognize the bridge's own
// mails on the way back in.
func MessageID(entityID, itemID, domain string) string {
	sum := sha256.Sum256([]byte(entityID + "|" + itemID))
	return fmt.Sprintf("%s@%s", hex.EncodeToString(sum[:16]), domain)
}
