package enum

type EmailProvider string

const (
	EmailProviderIMAP    EmailProvider = "imap"
	EmailProviderGmail   EmailProvider = "gmail"
	EmailProviderOutlook EmailProvider = "outlook"
)

func (t EmailProvider) String() string {
	return string(t)
}

func GetEmailProvider(s string) EmailProvider {
	return EmailProvider(s)
}

type EmailSecurity string

const (
	EmailSecurityNone EmailSecurity = "none"
	EmailSecurityTLS  EmailSecurity = "tls"
)

func (t EmailSecurity) String() string {
	return string(t)
}

type SessionState string

const (
	SessionStarting      SessionState = "starting"
	SessionPolling       SessionState = "polling"
	SessionPushListening SessionState = "push_listening"
	SessionDegraded      SessionState = "degraded"
	SessionStopping      SessionState = "stopping"
	SessionStopped       SessionState = "stopped"
)

func (t SessionState) String() string {
	return string(t)
}
