package commsutil

import (
	"fmt"
	"strings"
)

// Default COMMS subjects.
const (
	SubjectInbox  = "heimdall.inbox"
	SubjectOutbox = "heimdall.outbox"
	SubjectRouted = "heimdall.routed"
)

// BuildRoutedSubject builds the granular subject of a routing event kind.
func BuildRoutedSubject(kind string) string {
	return fmt.Sprintf("%s.%s", SubjectRouted, kind)
}

// BuildClientSubject builds a per-client inbox subject. Dots in the client name
// are replaced so the name stays a single subject token.
func BuildClientSubject(base, client string) string {
	safe := strings.ReplaceAll(client, ".", "_")
	return fmt.Sprintf("%s.%s", base, safe)
}
