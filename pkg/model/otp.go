package model

import "time"

// OtpChallenge is the single live one-time code issued for an email.
type OtpChallenge struct {
	Email     string    `bson:"_id"`
	CodeHash  []byte    `bson:"code_hash"`
	IssuedAt  time.Time `bson:"issued_at"`
	ExpiresAt time.Time `bson:"expires_at"`
	Attempts  int       `bson:"attempts"`
}

func (c *OtpChallenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

type OtpIssueRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

type OtpVerifyRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
	Code  string `json:"otp" validate:"required,numeric,min=4,max=10"`
}

type OtpIssueResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expires_at"`
	Code      string    `json:"code,omitempty"`
}

type OtpVerifyResponse struct {
	Verified bool   `json:"verified"`
	Message  string `json:"message"`
}
