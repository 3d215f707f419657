package notifier

import (
	"bytes"
	"fmt"
	"time"

	"github.com/gofiber/template/html/v2"

	"github.com/supportsoft/subhub/internal/pkg/mail"
)

const dateLayout = "January 2, 2006"

// EmailNotifier renders HTML email templates and delivers them via a Mailer.
type EmailNotifier struct {
	mailer mail.Mailer
	engine *html.Engine
}

// NewEmailNotifier loads the email templates from templatesDir (files with a
// .html extension) and binds them to the given mailer.
func NewEmailNotifier(templatesDir string, mailer mail.Mailer) (*EmailNotifier, error) {
	engine := html.New(templatesDir, ".html")
	if err := engine.Load(); err != nil {
		return nil, fmt.Errorf("load email templates: %w", err)
	}
	return &EmailNotifier{mailer: mailer, engine: engine}, nil
}

func (n *EmailNotifier) render(template string, bind fiberMap) (string, error) {
	var buf bytes.Buffer
	if err := n.engine.Render(&buf, template, bind); err != nil {
		return "", fmt.Errorf("render %s: %w", template, err)
	}
	return buf.String(), nil
}

type fiberMap map[string]interface{}

func (n *EmailNotifier) SendExpiryReminder(email, name, planName string, daysLeft int, endDate time.Time) error {
	body, err := n.render("expiry_reminder", fiberMap{
		"Name":     name,
		"PlanName": planName,
		"DaysLeft": daysLeft,
		"EndDate":  endDate.Format(dateLayout),
	})
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("Your %s subscription expires in %d day(s)", planName, daysLeft)
	return n.mailer.Send(email, subject, body)
}

func (n *EmailNotifier) SendCancellationConfirmation(email, name, planName string) error {
	body, err := n.render("cancellation_confirmation", fiberMap{
		"Name":     name,
		"PlanName": planName,
	})
	if err != nil {
		return err
	}
	return n.mailer.Send(email, "Your subscription has been cancelled", body)
}

func (n *EmailNotifier) SendSubscriptionConfirmation(email, name, planName string, price float64, endDate time.Time) error {
	body, err := n.render("subscription_confirmation", fiberMap{
		"Name":     name,
		"PlanName": planName,
		"Price":    fmt.Sprintf("%.2f", price),
		"EndDate":  endDate.Format(dateLayout),
	})
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("Welcome to the %s plan", planName)
	return n.mailer.Send(email, subject, body)
}

// SendNewPlanAnnouncement delivers per recipient; a failed recipient does not
// stop the rest, the first error is returned after the loop.
func (n *EmailNotifier) SendNewPlanAnnouncement(emails []string, planName string, price float64) error {
	body, err := n.render("new_plan_announcement", fiberMap{
		"PlanName": planName,
		"Price":    fmt.Sprintf("%.2f", price),
	})
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("New plan available: %s", planName)
	var firstErr error
	for _, email := range emails {
		if err := n.mailer.Send(email, subject, body); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
