package event

// Candidate is an extractor's raw output. Dates are free text.
type Candidate struct {
	// ID is the source's own identifier when the markup carries one.
	ID          string
	Title       string
	Description string
	Date        string
	EndDate     string
	City        string
	Venue       string
	Category    string
	Subcategory string
	URL         string
	Image       string
	Attendance  int
}

// Normalized is a validated event ready for deduplication and storage.
// Date is an ISO calendar date not earlier than the run's today.
type Normalized struct {
	Source      string
	LocalID     string
	Title       string
	Description string
	Date        string
	EndDate     string
	City        string
	Venue       string
	Category    string
	Subcategory string
	URL         string
	Image       string
	Attendance  int
}
