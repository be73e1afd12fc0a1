package model

import (
	"strings"
	"time"
)

type ExamBookingStatus string

const (
	ExamSubmitted  ExamBookingStatus = "submitted"
	ExamApproved   ExamBookingStatus = "approved"
	ExamPassIssued ExamBookingStatus = "exam_pass_issued"
	ExamCompleted  ExamBookingStatus = "completed"
	ExamCancelled  ExamBookingStatus = "cancelled"
)

var examTransitions = map[ExamBookingStatus][]ExamBookingStatus{
	ExamSubmitted:  {ExamApproved, ExamCancelled},
	ExamApproved:   {ExamPassIssued, ExamCancelled},
	ExamPassIssued: {ExamCompleted, ExamCancelled},
	ExamCompleted:  {},
	ExamCancelled:  {},
}

func ParseExamBookingStatus(s string) (ExamBookingStatus, bool) {
	v := ExamBookingStatus(strings.ToLower(strings.TrimSpace(s)))
	_, ok := examTransitions[v]
	return v, ok
}

func (s ExamBookingStatus) CanTransitionTo(next ExamBookingStatus) bool {
	if s == next {
		return true
	}
	for _, allowed := range examTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s ExamBookingStatus) Terminal() bool {
	return len(examTransitions[s]) == 0
}

// ExamBooking is the candidate's exam registration made against a confirmed
// voucher purchase.
type ExamBooking struct {
	ID             string            `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	PurchaseID     string            `json:"purchase_id" bson:"purchase_id" validate:"required,mongodb"`
	SlotID         string            `json:"slot_id" bson:"slot_id"`
	UserID         string            `json:"user_id" bson:"user_id" validate:"required"`
	CandidateName  string            `json:"candidate_name" bson:"candidate_name" validate:"required,min=2,max=100"`
	CandidateEmail string            `json:"candidate_email" bson:"candidate_email" validate:"required,email"`
	CandidatePhone string            `json:"candidate_phone,omitempty" bson:"candidate_phone,omitempty" validate:"omitempty,e164"`
	Authority      string            `json:"authority,omitempty" bson:"authority,omitempty"`
	ExamDate       string            `json:"exam_date" bson:"exam_date"`
	DocumentURL    string            `json:"document_url,omitempty" bson:"document_url,omitempty" validate:"omitempty,url"`
	Status         ExamBookingStatus `json:"status" bson:"status" validate:"required,oneof=submitted approved exam_pass_issued completed cancelled"`
	AdminMessage   string            `json:"admin_message,omitempty" bson:"admin_message,omitempty" validate:"max=500"`
	CreatedAt      time.Time         `json:"created_at" bson:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at" bson:"updated_at"`
}

type ExamBookingCreate struct {
	PurchaseID     string `json:"purchase_id" validate:"required,mongodb"`
	CandidateName  string `json:"candidate_name" validate:"required,min=2,max=100"`
	CandidateEmail string `json:"candidate_email" validate:"required,email"`
	CandidatePhone string `json:"candidate_phone,omitempty"`
	DocumentURL    string `json:"document_url,omitempty" validate:"omitempty,url"`
}

type ExamBookingQuery struct {
	UserID string
	Status ExamBookingStatus
	Limit  int
	Offset int64
}
