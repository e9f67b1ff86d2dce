// Package mail delivers transactional email (confirmation codes, MFA codes,
// password reset links). SMTPSender talks to a relay through go-mail;
// LogSender only logs and is meant for development and tests.
package mail
