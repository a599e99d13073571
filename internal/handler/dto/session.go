// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import "github.com/cookiespooky/np-tma-backend/internal/initdata"

// Error codes exposed to the client. Policy and infrastructure failures
// share CodeInternalError deliberately, so rejected callers learn nothing
// about routing or backend state.
const (
	CodeMissingInitData = "MISSING_INITDATA"
	CodeInvalidInitData = "INVALID_INITDATA"
	CodeExpiredInitData = "EXPIRED_INITDATA"
	CodeRateLimited     = "RATE_LIMITED"
	CodeInternalError   = "INTERNAL_ERROR"
)

// SessionRequest is the request body for both /validate and /lead.
type SessionRequest struct {
	InitData string `json:"initData"`
}

// UserResponse echoes the verified identity back to the client.
type UserResponse struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
	PhotoURL  string `json:"photo_url,omitempty"`
}

// StatsResponse carries visitor statistics.
type StatsResponse struct {
	UniqueUsers int64 `json:"unique_users"`
}

// ValidateResponse is the success envelope for POST /validate.
type ValidateResponse struct {
	OK    bool          `json:"ok"`
	User  UserResponse  `json:"user"`
	Stats StatsResponse `json:"stats"`
}

// LeadResponse is the success envelope for POST /lead.
type LeadResponse struct {
	OK bool `json:"ok"`
}

// ErrorResponse is the error envelope for every failed request.
type ErrorResponse struct {
	OK        bool   `json:"ok"`
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

// ToUserResponse maps a verified identity into the response shape.
func ToUserResponse(identity *initdata.Identity) UserResponse {
	return UserResponse{
		ID:        identity.ID,
		FirstName: identity.FirstName,
		LastName:  identity.LastName,
		Username:  identity.Username,
		PhotoURL:  identity.PhotoURL,
	}
}
