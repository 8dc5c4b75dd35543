package mailer

import (
	"fmt"
	"os"
	"sync"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/freshnest/cleaning-backend/pkg/logging"
)

// Message is one outbound email waiting in the dispatch queue.
type Message struct {
	ToName    string
	ToEmail   string
	Subject   string
	PlainText string
	HTML      string
}

// Mailer queues notification emails and delivers them on a background
// worker. Delivery failures are logged and swallowed: a payment confirmation
// must never be blocked by a notification failure.
type Mailer struct {
	client    *sendgrid.Client
	fromName  string
	fromEmail string
	appURL    string
	sandbox   bool

	queue chan Message
	once  sync.Once
	done  chan struct{}
	wg    sync.WaitGroup
}

// New builds a Mailer from the environment. With no SENDGRID_API_KEY the
// mailer still queues and logs, which keeps dev and tests mail-free.
func New() *Mailer {
	var client *sendgrid.Client
	if key := os.Getenv("SENDGRID_API_KEY"); key != "" {
		client = sendgrid.NewSendClient(key)
	}
	return &Mailer{
		client:    client,
		fromName:  envOr("MAIL_FROM_NAME", "FreshNest Cleaning"),
		fromEmail: envOr("MAIL_FROM", "hello@freshnestcleaning.example"),
		appURL:    envOr("APP_URL", "http://localhost:3000"),
		sandbox:   os.Getenv("APP_ENV") == "dev",
		queue:     make(chan Message, 256),
		done:      make(chan struct{}),
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Start launches the delivery worker.
func (m *Mailer) Start() {
	m.once.Do(func() {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			for {
				select {
				case msg := <-m.queue:
					m.deliver(msg)
				case <-m.done:
					// Drain whatever is still queued before exiting.
					for {
						select {
						case msg := <-m.queue:
							m.deliver(msg)
						default:
							return
						}
					}
				}
			}
		}()
	})
}

// Close stops the worker after draining the queue.
func (m *Mailer) Close() {
	close(m.done)
	m.wg.Wait()
}

// Enqueue hands a message to the worker. A full queue drops the message with
// a log line rather than blocking the request path.
func (m *Mailer) Enqueue(msg Message) {
	select {
	case m.queue <- msg:
	default:
		logging.Logger.Warnf("mail queue full, dropping %q to %s", msg.Subject, msg.ToEmail)
	}
}

func (m *Mailer) deliver(msg Message) {
	if m.client == nil {
		logging.Logger.Infof("mail (no client): %q -> %s", msg.Subject, msg.ToEmail)
		return
	}

	from := mail.NewEmail(m.fromName, m.fromEmail)
	to := mail.NewEmail(msg.ToName, msg.ToEmail)
	sgMsg := mail.NewSingleEmail(from, msg.Subject, to, msg.PlainText, msg.HTML)
	if m.sandbox {
		ms := mail.NewMailSettings()
		ms.SetSandboxMode(mail.NewSetting(true))
		sgMsg.MailSettings = ms
	}
	if _, err := m.client.Send(sgMsg); err != nil {
		logging.Logger.WithError(err).Warnf("Email send failure to %s (%q)", msg.ToEmail, msg.Subject)
	}
}

/* ========================== Notification types ========================== */

const baseHTML = `<div style="font-family:sans-serif;max-width:560px;margin:0 auto">
<h2 style="color:#1a7f64">%s</h2>
<p>Hi %s,</p>
<p>%s</p>
%s
<p style="color:#888;font-size:12px">FreshNest Cleaning</p>
</div>`

func button(url, label string) string {
	return fmt.Sprintf(`<p><a href="%s" style="background:#1a7f64;color:#fff;padding:10px 18px;border-radius:6px;text-decoration:none">%s</a></p>`, url, label)
}

func dollars(cents int) string {
	return fmt.Sprintf("$%d.%02d", cents/100, cents%100)
}

// SendMagicLink emails the one-time login link (15 minute expiry).
func (m *Mailer) SendMagicLink(name, email, token string) {
	link := fmt.Sprintf("%s/auth/verify?token=%s", m.appURL, token)
	m.Enqueue(Message{
		ToName:    name,
		ToEmail:   email,
		Subject:   "Your FreshNest login link",
		PlainText: fmt.Sprintf("Hi %s,\n\nUse this link to sign in (valid for 15 minutes):\n%s\n", name, link),
		HTML: fmt.Sprintf(baseHTML, "Sign in to FreshNest", name,
			"Use the button below to sign in. The link is valid for 15 minutes.",
			button(link, "Sign in")),
	})
}

// SendQuoteReceived confirms a new quote request landed.
func (m *Mailer) SendQuoteReceived(name, email, quoteID string) {
	m.Enqueue(Message{
		ToName:    name,
		ToEmail:   email,
		Subject:   "We received your quote request",
		PlainText: fmt.Sprintf("Hi %s,\n\nThanks for your request (ref %s). We'll price it and get back to you shortly.\n", name, quoteID),
		HTML: fmt.Sprintf(baseHTML, "Quote request received", name,
			fmt.Sprintf("Thanks for your request (ref %s). We'll price it and get back to you shortly.", quoteID), ""),
	})
}

// SendQuoteReady tells the customer their quote has been priced.
func (m *Mailer) SendQuoteReady(name, email, quoteID string, totalCents int) {
	link := fmt.Sprintf("%s/dashboard/quotes/%s", m.appURL, quoteID)
	m.Enqueue(Message{
		ToName:    name,
		ToEmail:   email,
		Subject:   "Your cleaning quote is ready",
		PlainText: fmt.Sprintf("Hi %s,\n\nYour quote comes to %s. Review and accept it here:\n%s\n", name, dollars(totalCents), link),
		HTML: fmt.Sprintf(baseHTML, "Your quote is ready", name,
			fmt.Sprintf("Your quote comes to <strong>%s</strong>.", dollars(totalCents)),
			button(link, "Review quote")),
	})
}

// SendQuoteRejected tells the customer we can't take the job.
func (m *Mailer) SendQuoteRejected(name, email string) {
	m.Enqueue(Message{
		ToName:    name,
		ToEmail:   email,
		Subject:   "About your quote request",
		PlainText: fmt.Sprintf("Hi %s,\n\nUnfortunately we can't take on this job right now. Sorry we couldn't help this time.\n", name),
		HTML: fmt.Sprintf(baseHTML, "About your quote request", name,
			"Unfortunately we can't take on this job right now. Sorry we couldn't help this time.", ""),
	})
}

// SendPaymentReceipt confirms a captured payment.
func (m *Mailer) SendPaymentReceipt(name, email string, amountCents int, quoteID string) {
	m.Enqueue(Message{
		ToName:    name,
		ToEmail:   email,
		Subject:   "Payment received - thank you",
		PlainText: fmt.Sprintf("Hi %s,\n\nWe've received your payment of %s for quote %s. We'll be in touch to schedule your clean.\n", name, dollars(amountCents), quoteID),
		HTML: fmt.Sprintf(baseHTML, "Payment received", name,
			fmt.Sprintf("We've received your payment of <strong>%s</strong>. We'll be in touch to schedule your clean.", dollars(amountCents)), ""),
	})
}

// SendPaymentFailed tells the customer their card didn't go through.
func (m *Mailer) SendPaymentFailed(name, email, quoteID string) {
	link := fmt.Sprintf("%s/dashboard/quotes/%s", m.appURL, quoteID)
	m.Enqueue(Message{
		ToName:    name,
		ToEmail:   email,
		Subject:   "Payment failed",
		PlainText: fmt.Sprintf("Hi %s,\n\nYour payment didn't go through. You can retry here:\n%s\n", name, link),
		HTML: fmt.Sprintf(baseHTML, "Payment failed", name,
			"Your payment didn't go through. You can retry below.",
			button(link, "Retry payment")),
	})
}

// SendAdminPaymentNotice pings the back office about a captured payment.
func (m *Mailer) SendAdminPaymentNotice(adminEmail, customerName, quoteID string, amountCents int) {
	m.Enqueue(Message{
		ToName:    "FreshNest Admin",
		ToEmail:   adminEmail,
		Subject:   fmt.Sprintf("Payment captured: %s (%s)", customerName, dollars(amountCents)),
		PlainText: fmt.Sprintf("Quote %s was paid (%s) by %s. Schedule the booking from the admin dashboard.\n", quoteID, dollars(amountCents), customerName),
		HTML: fmt.Sprintf(baseHTML, "Payment captured", "team",
			fmt.Sprintf("Quote %s was paid (<strong>%s</strong>) by %s. Schedule the booking from the admin dashboard.", quoteID, dollars(amountCents), customerName), ""),
	})
}

// SendBookingScheduled confirms the scheduled date to the customer.
func (m *Mailer) SendBookingScheduled(name, email, date, window string) {
	m.Enqueue(Message{
		ToName:    name,
		ToEmail:   email,
		Subject:   "Your clean is booked",
		PlainText: fmt.Sprintf("Hi %s,\n\nYour clean is booked for %s (%s). See you then!\n", name, date, window),
		HTML: fmt.Sprintf(baseHTML, "Your clean is booked", name,
			fmt.Sprintf("Your clean is booked for <strong>%s</strong> (%s). See you then!", date, window), ""),
	})
}

// SendCleanerAssignment notifies a contractor of a new job offer.
func (m *Mailer) SendCleanerAssignment(name, email, suburb string, payoutCents int) {
	link := fmt.Sprintf("%s/cleaner/jobs", m.appURL)
	m.Enqueue(Message{
		ToName:    name,
		ToEmail:   email,
		Subject:   "New job offer",
		PlainText: fmt.Sprintf("Hi %s,\n\nYou've been offered a job in %s paying %s. Accept or decline from your portal:\n%s\n", name, suburb, dollars(payoutCents), link),
		HTML: fmt.Sprintf(baseHTML, "New job offer", name,
			fmt.Sprintf("You've been offered a job in %s paying <strong>%s</strong>.", suburb, dollars(payoutCents)),
			button(link, "View job")),
	})
}

// SendCleanerPayment notifies a contractor their payout is on the way.
func (m *Mailer) SendCleanerPayment(name, email string, payoutCents int) {
	m.Enqueue(Message{
		ToName:    name,
		ToEmail:   email,
		Subject:   "Job payment on the way",
		PlainText: fmt.Sprintf("Hi %s,\n\nNice work. Your payment of %s for the completed job is being processed.\n", name, dollars(payoutCents)),
		HTML: fmt.Sprintf(baseHTML, "Job payment on the way", name,
			fmt.Sprintf("Nice work. Your payment of <strong>%s</strong> for the completed job is being processed.", dollars(payoutCents)), ""),
	})
}

// SendReviewRequest invites the customer to leave a review (single-use link).
func (m *Mailer) SendReviewRequest(name, email, token string) {
	link := fmt.Sprintf("%s/review/%s", m.appURL, token)
	m.Enqueue(Message{
		ToName:    name,
		ToEmail:   email,
		Subject:   "How did we do?",
		PlainText: fmt.Sprintf("Hi %s,\n\nThanks for choosing FreshNest. We'd love a quick review:\n%s\n", name, link),
		HTML: fmt.Sprintf(baseHTML, "How did we do?", name,
			"Thanks for choosing FreshNest. We'd love a quick review.",
			button(link, "Leave a review")),
	})
}

// SendPasswordReset emails the admin reset link (1 hour expiry).
func (m *Mailer) SendPasswordReset(name, email, token string) {
	link := fmt.Sprintf("%s/admin/reset-password?token=%s", m.appURL, token)
	m.Enqueue(Message{
		ToName:    name,
		ToEmail:   email,
		Subject:   "Reset your password",
		PlainText: fmt.Sprintf("Hi %s,\n\nReset your password here (valid for 1 hour):\n%s\n", name, link),
		HTML: fmt.Sprintf(baseHTML, "Reset your password", name,
			"Use the button below to reset your password. The link is valid for 1 hour.",
			button(link, "Reset password")),
	})
}
