// Package welcome sends the welcome email to newly registered students.
package welcome

import (
	"context"
	"net/mail"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/studyrelay/core"
)

const (
	templateName  = "welcome"
	subject       = "Welcome!"
	defaultLocale = "en"
)

// greetings holds the opening line of the email for each supported locale.
var greetings = map[string]string{
	"en": "Welcome aboard!",
	"fr": "Bienvenue à bord !",
	"sw": "Karibu!",
}

var errUnsupportedLocale = errors.New("unsupported locale")

type (
	NewWelcome struct {
		Email  string `json:"email" validate:"required,email"`
		Name   string `json:"name" validate:"required,notblank,max=200"`
		Locale string `json:"locale" validate:"omitempty,alpha,len=2"`
	}

	welcomeData struct {
		Name     string
		Greeting string
	}

	Service struct {
		mailSvc  core.EmailService
		validate *validator.Validate
	}
)

func NewService(mailSvc core.EmailService, validate *validator.Validate) *Service {
	return &Service{mailSvc: mailSvc, validate: validate}
}

// Send validates nw and queues the email. Rendering happens here so template errors are
// reported to the caller instead of being lost in the background send.
func (svc *Service) Send(ctx context.Context, nw NewWelcome) error {
	nw.Email = core.CleanString(nw.Email, true /* lower */)
	nw.Name = core.CleanString(nw.Name)
	nw.Locale = core.CleanString(nw.Locale, true /* lower */)

	if err := svc.validate.StructCtx(ctx, nw); err != nil {
		return err
	}
	if nw.Locale == "" {
		nw.Locale = defaultLocale
	}
	greeting, ok := greetings[nw.Locale]
	if !ok {
		return core.NewValidationError(
			errors.Wrapf(errUnsupportedLocale, "locale %q", nw.Locale),
			core.FieldError{Field: "locale", Error: "this locale is not supported"},
		)
	}

	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: nw.Name, Address: nw.Email}},
		Subject:      subject,
		TemplateName: templateName,
		TemplateData: welcomeData{Name: nw.Name, Greeting: greeting},
	}
	if err := msg.Render(); err != nil {
		return errors.Wrap(err, "rendering welcome email")
	}
	svc.mailSvc.SendMessages(msg)
	return nil
}
