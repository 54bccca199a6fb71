// Package extract turns fetched content into candidate events.
//
// Three strategies exist, tried in order per page: embedded structured data
// (free and deterministic), the text-completion service, and a low-precision
// line pattern scan used only when both others find nothing. Feed items are
// converted directly.
package extract

import "github.com/lysyi3m/event-comb/app/event"

// Result carries candidates together with the non-fatal failures met while
// producing them.
type Result struct {
	Candidates []event.Candidate
	Errors     []error
	// Requests counts completion calls that returned a response.
	Requests int
}
