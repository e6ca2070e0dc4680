package domain

const (
	MailTypeCreateUser      = "create_user"
	MailTypePasswordChanged = "password_changed"

	MailQueue = "email_queue"
)

type MailMessage struct {
	Type string `json:"type"`
	To   string `json:"to"`
	Data any    `json:"data"`
}

type CreateUserMailData struct {
	FullName  string `json:"fullName"`
	Email     string `json:"email"`
	PortalURL string `json:"portalUrl"`
}

type PasswordChangedMailData struct {
	Email     string `json:"email"`
	ChangedAt string `json:"changedAt"`
}
