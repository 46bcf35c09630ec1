package node

// WaitResolver is implemented by node kinds whose async wait is
// multi-path (wait_until): resuming them means picking the winning
// path, not re-running Execute.
type WaitResolver interface {
	Resolve(resumedByTimeout bool, matchedPathID string) *WaitPath
}

// OutcomeResolver is implemented by node kinds that wait on a binary
// platform outcome event (purchase, restore): resuming them means
// picking the success or failure successor.
type OutcomeResolver interface {
	Resolve(success bool) string
}

var (
	_ WaitResolver    = (*WaitUntil)(nil)
	_ OutcomeResolver = (*Purchase)(nil)
	_ OutcomeResolver = (*Restore)(nil)
)
