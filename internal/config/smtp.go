package config

// SMTPConfig carries the email transport settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

// LoadSMTP reads the SMTP settings; only the email worker needs them.
func LoadSMTP() SMTPConfig {
	return SMTPConfig{
		Host:     GetString("SMTP_HOST", "localhost"),
		Port:     GetInt("SMTP_PORT", 587),
		Username: GetString("SMTP_USERNAME", ""),
		Password: GetString("SMTP_PASSWORD", ""),
		From:     GetString("SMTP_FROM_EMAIL", "no-reply@relaypoint.dev"),
		FromName: GetString("SMTP_FROM_NAME", "RelayPoint"),
	}
}
