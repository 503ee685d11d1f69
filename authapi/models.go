package authapi

// Identity is the signed-in user's profile as returned by the profile endpoint.
type Identity struct {
	Email string `json:"email"`
	ID    int64  `json:"id"`
	Role  string `json:"role"`
}

// Credentials is the body of the login and register requests.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is returned by the login endpoint. On failure Success is false
// and Message carries the server's explanation.
type LoginResponse struct {
	Success     bool      `json:"success"`
	AccessToken string    `json:"accessToken,omitempty"`
	Message     string    `json:"message,omitempty"`
	User        *Identity `json:"user,omitempty"`
}

// RegisterResponse is returned by the register endpoint.
type RegisterResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// RefreshResponse is returned by the renew endpoint.
type RefreshResponse struct {
	Success     bool   `json:"success"`
	AccessToken string `json:"accessToken,omitempty"`
	Message     string `json:"message,omitempty"`
}

// LogoutResponse acknowledges a sign-out.
type LogoutResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// ProfileResponse is returned by the profile endpoint.
type ProfileResponse struct {
	User Identity `json:"user"`
}
