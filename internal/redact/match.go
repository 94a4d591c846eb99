package redact

// Kind tags the category of a detected PII occurrence.
type Kind string

// Match kinds. The string values appear in plans, audit records, policy
// documents, and recognizer pattern files.
const (
	KindSSN               Kind = "ssn"
	KindCreditCard        Kind = "credit_card"
	KindRoutingNumber     Kind = "routing_number"
	KindAccountNumber     Kind = "account_number"
	KindCreditScore       Kind = "credit_score"
	KindCreditScoreRating Kind = "credit_score_rating"
	KindEmail             Kind = "email"
	KindPhoneNumber       Kind = "phone_number"
	KindOther             Kind = "other"
)

// Match is one detected PII occurrence: a kind tag and a half-open
// [Start, End) span into the document text it was detected in. Text retains
// the matched substring and Confidence the detector's score; both are
// audit/filter metadata and never participate in overlap decisions.
type Match struct {
	Kind       Kind    `json:"kind"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Text       string  `json:"text,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}
