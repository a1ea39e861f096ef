package notification

import (
	"context"
	"net/mail"

	"github.com/pkg/errors"

	"github.com/trezcool/cohort/core"
	"github.com/trezcool/cohort/core/event"
	"github.com/trezcool/cohort/core/user"
)

const emailTemplate = "notification"

// Mailer emails stored notifications to their recipients.
type Mailer struct {
	users   *user.Service
	mailSvc core.EmailService
}

func NewMailer(users *user.Service, mailSvc core.EmailService) *Mailer {
	return &Mailer{users: users, mailSvc: mailSvc}
}

func (m *Mailer) Register(bus *event.Bus) {
	bus.Subscribe(KindDispatched, "notification.mailer", m.handle)
}

type emailData struct {
	RecipientName string
	Message       string
	Link          string
}

func (m *Mailer) handle(ctx context.Context, e event.Event) error {
	ev, ok := e.(Dispatched)
	if !ok || len(ev.Notifications) == 0 {
		return nil
	}

	ids := make([]string, 0, len(ev.Notifications))
	for _, n := range ev.Notifications {
		ids = append(ids, n.RecipientID)
	}
	active := true
	users, err := m.users.Query(ctx, &user.QueryFilter{IDs: ids, IsActive: &active})
	if err != nil {
		return errors.Wrap(err, "querying recipients")
	}
	byID := make(map[string]user.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	msgs := make([]*core.EmailMessage, 0, len(ev.Notifications))
	for _, n := range ev.Notifications {
		u, ok := byID[n.RecipientID]
		if !ok || u.Email == "" {
			continue
		}
		msgs = append(msgs, &core.EmailMessage{
			To:           []mail.Address{u.Address()},
			Subject:      n.Title,
			TemplateName: emailTemplate,
			TemplateData: emailData{RecipientName: u.FullName(), Message: n.Message, Link: n.Link},
		})
	}
	if len(msgs) > 0 {
		m.mailSvc.SendMessages(msgs...)
	}
	return nil
}
