package identity

import (
	"context"
	"log/slog"
	"net/mail"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/courtside/internal/model"
	"github.com/dukerupert/courtside/internal/store"
)

const ProviderPassword = "password"

// Mailer delivers password reset links.
type Mailer interface {
	Configured() bool
	SendPasswordReset(toEmail, link string) error
}

// LocalProvider is an email/password Provider backed by the SQLite stores.
type LocalProvider struct {
	accounts *store.AccountStore
	resets   *store.ResetCodeStore
	mailer   Mailer
	baseURL  string
	logger   *slog.Logger
}

func NewLocalProvider(as *store.AccountStore, rs *store.ResetCodeStore, mailer Mailer, baseURL string, logger *slog.Logger) *LocalProvider {
	return &LocalProvider{
		accounts: as,
		resets:   rs,
		mailer:   mailer,
		baseURL:  strings.TrimRight(baseURL, "/"),
		logger:   logger,
	}
}

func validEmail(addr string) bool {
	parsed, err := mail.ParseAddress(addr)
	return err == nil && parsed.Address == addr
}

func (p *LocalProvider) CreateUser(ctx context.Context, email, password string) (*model.User, error) {
	if !validEmail(email) {
		return nil, providerErr(CodeInvalidEmail, "The email address is badly formatted.")
	}
	if tooShort(password) {
		return nil, providerErr(CodeWeakPassword, "Password should be at least 6 characters.")
	}

	existing, err := p.accounts.GetByEmail(email)
	if err != nil {
		p.logger.Error("sign up lookup", "error", err)
		return nil, providerErr(CodeInternal, "An internal error has occurred.")
	}
	if existing != nil {
		return nil, providerErr(CodeEmailInUse, "The email address is already in use by another account.")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		p.logger.Error("hash password", "error", err)
		return nil, providerErr(CodeInternal, "An internal error has occurred.")
	}

	a, err := p.accounts.Create(uuid.NewString(), email, string(hash))
	if store.IsUniqueViolation(err) {
		return nil, providerErr(CodeEmailInUse, "The email address is already in use by another account.")
	}
	if err != nil {
		p.logger.Error("create account", "error", err)
		return nil, providerErr(CodeInternal, "An internal error has occurred.")
	}

	return &model.User{UID: a.UID, Email: a.Email, Provider: ProviderPassword}, nil
}

func (p *LocalProvider) SignIn(ctx context.Context, email, password string) (*model.User, error) {
	if !validEmail(email) {
		return nil, providerErr(CodeInvalidEmail, "The email address is badly formatted.")
	}

	a, err := p.accounts.GetByEmail(email)
	if err != nil {
		p.logger.Error("sign in lookup", "error", err)
		return nil, providerErr(CodeInternal, "An internal error has occurred.")
	}
	if a == nil {
		return nil, providerErr(CodeUserNotFound, "There is no user record corresponding to this identifier.")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)); err != nil {
		return nil, providerErr(CodeWrongPassword, "The password is invalid.")
	}

	return &model.User{UID: a.UID, Email: a.Email, Provider: ProviderPassword}, nil
}

func (p *LocalProvider) SendPasswordReset(ctx context.Context, email string) error {
	if !validEmail(email) {
		return providerErr(CodeInvalidEmail, "The email address is badly formatted.")
	}

	a, err := p.accounts.GetByEmail(email)
	if err != nil {
		p.logger.Error("reset lookup", "error", err)
		return providerErr(CodeInternal, "An internal error has occurred.")
	}
	if a == nil {
		return providerErr(CodeUserNotFound, "There is no user record corresponding to this identifier.")
	}

	rc, err := p.resets.Create(a.Email)
	if err != nil {
		p.logger.Error("create reset code", "error", err)
		return providerErr(CodeInternal, "An internal error has occurred.")
	}

	link := p.baseURL + "/auth/reset/confirm?token=" + url.QueryEscape(rc.Token)
	if p.mailer == nil || !p.mailer.Configured() {
		p.logger.Info("password reset link generated", "email", a.Email, "link", link)
		return nil
	}
	if err := p.mailer.SendPasswordReset(a.Email, link); err != nil {
		p.logger.Error("send reset email", "error", err)
		return providerErr(CodeInternal, "Could not send the reset email. Please try again later.")
	}
	return nil
}

func (p *LocalProvider) ConfirmPasswordReset(ctx context.Context, token, password string) error {
	if tooShort(password) {
		return providerErr(CodeWeakPassword, "Password should be at least 6 characters.")
	}

	rc, err := p.resets.GetValid(token)
	if err != nil {
		p.logger.Error("reset code lookup", "error", err)
		return providerErr(CodeInternal, "An internal error has occurred.")
	}
	if rc == nil {
		return providerErr(CodeExpiredAction, "The reset link is invalid or has expired.")
	}

	a, err := p.accounts.GetByEmail(rc.Email)
	if err != nil || a == nil {
		p.logger.Error("reset account lookup", "error", err)
		return providerErr(CodeUserNotFound, "There is no user record corresponding to this identifier.")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		p.logger.Error("hash password", "error", err)
		return providerErr(CodeInternal, "An internal error has occurred.")
	}
	if err := p.accounts.UpdatePassword(a.UID, string(hash)); err != nil {
		p.logger.Error("update password", "error", err)
		return providerErr(CodeInternal, "An internal error has occurred.")
	}
	if err := p.resets.MarkUsed(rc.ID); err != nil {
		p.logger.Error("mark reset code used", "error", err)
	}
	return nil
}
