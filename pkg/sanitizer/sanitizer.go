package sanitizer

import "licensedesk/pkg/model"

type Strategy func(string) string

type Pipeline []Strategy

func (p Pipeline) Apply(s string) string {
	for _, fn := range p {
		s = fn(s)
	}
	return s
}

// SanitizeGuest normalizes guest contact fields in place.
func SanitizeGuest(g *model.GuestContact) {
	if g == nil {
		return
	}
	g.Name = NormalizeName(g.Name)
	g.Email = NormalizeEmail(g.Email)
	g.Phone = NormalizePhone(g.Phone)
}

// SanitizeExamCandidate normalizes the candidate fields of an exam booking request.
func SanitizeExamCandidate(req *model.ExamBookingCreate) {
	req.CandidateName = NormalizeName(req.CandidateName)
	req.CandidateEmail = NormalizeEmail(req.CandidateEmail)
	req.CandidatePhone = NormalizePhone(req.CandidatePhone)
	req.DocumentURL = NormalizeURL(req.DocumentURL)
}

// SanitizeSlotCreate normalizes the free-text fields of an inventory request.
func SanitizeSlotCreate(req *model.SlotCreate) {
	req.Location = NormalizeLocation(req.Location)
	req.Authority = NormalizeLocation(req.Authority)
	req.Currency = NormalizeCurrency(req.Currency)
}

// SanitizeFilter normalizes catalog filter fields the same way slots are
// stored so exact matches line up.
func SanitizeFilter(f *model.SlotFilter) {
	f.Location = NormalizeLocation(f.Location)
	f.Authority = NormalizeLocation(f.Authority)
}
