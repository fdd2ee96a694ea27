// internal/workers/recruiting/create-invite/models.go
package createinvite

type Input struct {
	InviterID string `json:"inviterId"`
	Email     string `json:"email"`
}

type Output struct {
	InviteToken string `json:"inviteToken"`
	InviteURL   string `json:"inviteUrl,omitempty"`
	ExpiresAt   string `json:"expiresAt"` // RFC 3339
}
