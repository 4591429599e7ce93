package commsutil

import (
	"fmt"
	"strings"
)

// Default COMMS subjects.
const (
	SubjectProvider           = "cap.bridge.provider.v1"
	SubjectInvocationRecorded = "bridge.invocations.recorded"
	eventsSuffix              = "events"
)

// EventsSubject is the subject a provider publishes notifications on.
func EventsSubject(providerSubject string) string {
	return providerSubject + "." + eventsSuffix
}

// BuildRecordedSubject builds a per-capability subject for invocation-recorded events.
func BuildRecordedSubject(base, capability string) string {
	safe := strings.ReplaceAll(capability, ".", "_")
	return fmt.Sprintf("%s.%s", base, safe)
}
