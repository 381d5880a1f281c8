package lead

import "github.com/sells-group/visitor-enrich/internal/model"

// MaxScore caps a lead's score.
const MaxScore = 100

// Score weights. A full name counts only when both parts are present.
const (
	weightEmail    = 30
	weightFullName = 20
	weightCompany  = 20
	weightTitle    = 10
	weightPhone    = 10
	weightLinkedIn = 5
	weightWebsite  = 5
)

// Score rates merged data by which fields are present. Adding a field never
// lowers the score, and the result stays within [0, MaxScore].
func Score(f model.Fields) int {
	score := 0
	if f.Has(model.FieldEmail) {
		score += weightEmail
	}
	if f.Has(model.FieldFirstName) && f.Has(model.FieldLastName) {
		score += weightFullName
	}
	if f.Has(model.FieldCompany) {
		score += weightCompany
	}
	if f.Has(model.FieldTitle) {
		score += weightTitle
	}
	if f.Has(model.FieldPhone) {
		score += weightPhone
	}
	if f.Has(model.FieldLinkedInURL) {
		score += weightLinkedIn
	}
	if f.Has(model.FieldWebsite) {
		score += weightWebsite
	}
	return min(score, MaxScore)
}
