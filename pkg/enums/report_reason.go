package enums

import "fmt"

// ReportReason classifies why a review was flagged.
type ReportReason string

const (
	ReportReasonSpam          ReportReason = "spam"
	ReportReasonInappropriate ReportReason = "inappropriate"
	ReportReasonFake          ReportReason = "fake"
	ReportReasonOffensive     ReportReason = "offensive"
	ReportReasonOther         ReportReason = "other"
)

var validReportReasons = []ReportReason{
	ReportReasonSpam,
	ReportReasonInappropriate,
	ReportReasonFake,
	ReportReasonOffensive,
	ReportReasonOther,
}

// String implements fmt.Stringer.
func (r ReportReason) String() string {
	return string(r)
}

// IsValid reports whether the value is a known ReportReason.
func (r ReportReason) IsValid() bool {
	for _, candidate := range validReportReasons {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseReportReason converts raw input into a ReportReason.
func ParseReportReason(value string) (ReportReason, error) {
	for _, candidate := range validReportReasons {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid report reason %q", value)
}
