package httpserver

import (
	"time"

	"github.com/and161185/goph-auth/internal/model"
)

type registerRequest struct {
	Email     string `json:"email" binding:"required,email,max=254"`
	Password  string `json:"password" binding:"required,min=8,max=72"`
	Username  string `json:"username" binding:"required,max=150,username"`
	FirstName string `json:"first_name" binding:"omitempty,max=150"`
	LastName  string `json:"last_name" binding:"omitempty,max=150"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	Refresh string `json:"refresh" binding:"required"`
}

type changePasswordRequest struct {
	Current string `json:"current_password" binding:"required"`
	New     string `json:"new_password" binding:"required,min=8,max=72,nefield=Current"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	CreatedAt time.Time `json:"created_at"`
}

type tokensResponse struct {
	Access    string    `json:"access"`
	Refresh   string    `json:"refresh"`
	ExpiresAt time.Time `json:"expires_at"`
}

type registerResponse struct {
	User userResponse `json:"user"`
	tokensResponse
}

type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func toUser(va model.VerifiedAccount) userResponse {
	return userResponse{
		ID:        va.ID.String(),
		Username:  va.Profile.Username,
		Email:     va.Identity,
		FirstName: va.Profile.FirstName,
		LastName:  va.Profile.LastName,
		CreatedAt: va.CreatedAt,
	}
}

func toTokens(t model.Tokens) tokensResponse {
	return tokensResponse{Access: t.AccessToken, Refresh: t.RefreshToken, ExpiresAt: t.ExpiresAt}
}
