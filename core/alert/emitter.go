// Package alert records at-risk notifications and emails the students concerned.
package alert

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/trezcool/minierp/core"
	"github.com/trezcool/minierp/core/docstore"
	"github.com/trezcool/minierp/core/risk"
	"github.com/trezcool/minierp/core/school"
)

// Email delivery results, as counted by alert_emails_total.
const (
	resultSent    = "sent"
	resultFailed  = "failed"  // retries exhausted: dead letter
	resultDropped = "dropped" // queue full or emitter closed
	resultSkipped = "skipped" // no usable address
)

var errClosed = errors.New("alert emitter closed")

type (
	Options struct {
		Workers         int
		QueueSize       int
		MaxRetries      uint64
		InitialInterval time.Duration // first retry delay
		SendTimeout     time.Duration // per delivery, retries included
		Logger          core.Logger
		Registerer      prometheus.Registerer
	}

	// Emitter persists a notification for every at-risk assessment it is given and queues
	// an email to the student. Email delivery is retried with backoff in the background and
	// its failures never reach the caller.
	// Notifications are not deduplicated: a student stays notified on every qualifying write.
	Emitter struct {
		gw     *docstore.Gateway
		mail   core.EmailService
		logger core.Logger
		opts   Options

		mu     sync.RWMutex
		closed bool
		queue  chan *core.EmailMessage
		wg     sync.WaitGroup

		emails *prometheus.CounterVec

		// Now is replaceable in tests.
		Now func() time.Time
	}
)

func NewEmitter(gw *docstore.Gateway, mail core.EmailService, opts Options) *Emitter {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 100
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = 500 * time.Millisecond
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = time.Minute
	}
	emails := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "alert",
			Subsystem: "emails",
			Name:      "total",
			Help:      "At-risk alert emails by delivery result.",
		},
		[]string{"result"},
	)
	if opts.Registerer != nil {
		opts.Registerer.MustRegister(emails)
	}

	em := &Emitter{
		gw:     gw,
		mail:   mail,
		logger: opts.Logger,
		opts:   opts,
		queue:  make(chan *core.EmailMessage, opts.QueueSize),
		emails: emails,
		Now:    time.Now,
	}
	for i := 0; i < opts.Workers; i++ {
		em.wg.Add(1)
		go em.work()
	}
	return em
}

// Message is the notification text of an assessment.
func Message(a risk.Assessment) string {
	return fmt.Sprintf("Student %s flagged: %s", a.StudentID, strings.Join(a.Reasons, ", "))
}

func Subject(studentID string) string {
	return fmt.Sprintf("Student %s at-risk alert", studentID)
}

// Emit records the notification of an at-risk assessment and queues the student email.
// It returns the notification and whether it was persisted.
func (em *Emitter) Emit(ctx context.Context, a risk.Assessment) (school.Notification, bool) {
	student := school.Student{StudentID: a.StudentID}
	if doc, ok := em.gw.Get(ctx, docstore.Students, a.StudentID); ok {
		student = school.StudentFromDoc(doc)
	}

	n := school.Notification{
		StudentID:   a.StudentID,
		StudentName: student.FullName(),
		Type:        school.NotificationRiskAlert,
		Message:     Message(a),
		Reasons:     append([]string{}, a.Reasons...),
		CreatedAt:   em.Now().UTC().Format("2006-01-02T15:04:05.000000") + "Z",
		Read:        false,
	}
	n.ID = em.gw.Add(ctx, docstore.Notifications, n.Data(), "")
	if n.ID == "" {
		em.logger.Warn(fmt.Sprintf("alert: notification for student %s not persisted", a.StudentID))
	}

	em.enqueue(core.NewEmailMessage(student.Email, Subject(a.StudentID), n.Message))
	return n, n.ID != ""
}

func (em *Emitter) enqueue(msg *core.EmailMessage) {
	if !msg.HasRecipients() {
		em.emails.WithLabelValues(resultSkipped).Inc()
		return
	}

	em.mu.RLock()
	defer em.mu.RUnlock()
	if em.closed {
		em.drop(msg, errClosed)
		return
	}
	select {
	case em.queue <- msg:
	default:
		em.drop(msg, errors.New("alert queue full"))
	}
}

func (em *Emitter) drop(msg *core.EmailMessage, err error) {
	em.emails.WithLabelValues(resultDropped).Inc()
	em.logger.Warn(fmt.Sprintf("alert: email %q dropped: %v", msg.Subject, err))
}

func (em *Emitter) work() {
	defer em.wg.Done()
	for msg := range em.queue {
		em.deliver(msg)
	}
}

func (em *Emitter) deliver(msg *core.EmailMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), em.opts.SendTimeout)
	defer cancel()

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = em.opts.InitialInterval
	b := backoff.WithContext(backoff.WithMaxRetries(eb, em.opts.MaxRetries), ctx)

	var attempts int
	err := backoff.Retry(func() error {
		attempts++
		return em.mail.Send(ctx, msg)
	}, b)
	if err != nil {
		em.emails.WithLabelValues(resultFailed).Inc()
		em.logger.Error(
			fmt.Sprintf("alert: dead letter, email %q undelivered after %d attempts: %v", msg.Subject, attempts, err),
			err,
			map[string]interface{}{"to": msg.To, "subject": msg.Subject, "body": msg.Body},
		)
		return
	}
	em.emails.WithLabelValues(resultSent).Inc()
}

// Close stops accepting emails and waits for the queued ones to be delivered, or ctx to be done.
func (em *Emitter) Close(ctx context.Context) error {
	em.mu.Lock()
	if !em.closed {
		em.closed = true
		close(em.queue)
	}
	em.mu.Unlock()

	done := make(chan struct{})
	go func() {
		em.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "draining alert queue")
	}
}
