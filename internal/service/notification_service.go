package service

import (
	"context"
	"fmt"
	"log/slog"
	"obligation_manager/internal/domain"
	"sync"
	"time"
)

type NotificationType string

const (
	NotificationEmail NotificationType = "email"
	NotificationSMS   NotificationType = "sms"
	NotificationSlack NotificationType = "slack"
)

type NotificationService struct {
	emailService EmailService
	smsService   SMSService
	slackService SlackService
	messageQueue chan NotificationMessage
	workers      int
	shutdownChan chan struct{}
	wg           sync.WaitGroup
	logger       *slog.Logger
}

type NotificationMessage struct {
	Type      NotificationType
	Recipient string
	Subject   string
	Message   string
	Priority  int
	Metadata  map[string]string
	CreatedAt time.Time
}

type EmailService interface {
	SendEmail(to, subject, body string) error
}

type SMSService interface {
	SendSMS(to, message string) error
}

type SlackService interface {
	SendMessage(channel, message string) error
}

func NewNotificationService(
	emailService EmailService,
	smsService SMSService,
	slackService SlackService,
	workers int,
	logger *slog.Logger,
) *NotificationService {
	if logger == nil {
		logger = slog.Default()
	}

	service := &NotificationService{
		emailService: emailService,
		smsService:   smsService,
		slackService: slackService,
		messageQueue: make(chan NotificationMessage, 1000),
		workers:      workers,
		shutdownChan: make(chan struct{}),
		logger:       logger,
	}

	service.startWorkers()

	return service
}

// NotifyExpired reports an obligation that reached its validity window's
// end during an advance and was deactivated.
func (s *NotificationService) NotifyExpired(ctx context.Context, obligation domain.Obligation) {
	message := fmt.Sprintf(
		"Recurring obligation %s (%s %s %s) expired: next occurrence %s falls past its validity window.",
		obligation.ID, obligation.Kind, obligation.Amount, obligation.Currency,
		obligation.NextRunDate.Format("2006-01-02"),
	)

	s.enqueue(ctx, NotificationMessage{
		Type:      NotificationSlack,
		Recipient: "#obligation-events",
		Subject:   "Obligation Expired",
		Message:   message,
		Priority:  5,
		Metadata: map[string]string{
			"obligation_id": obligation.ID,
			"workspace_id":  obligation.WorkspaceID,
		},
		CreatedAt: time.Now(),
	})
}

// NotifyRunCompleted reports the outcome of a processing run. Failures get
// a higher priority so operators see partial batches.
func (s *NotificationService) NotifyRunCompleted(ctx context.Context, workspaceID string, processed, failed int) {
	priority := 3
	subject := "Processing Run Completed"
	if failed > 0 {
		priority = 8
		subject = "Processing Run Completed With Failures"
	}

	s.enqueue(ctx, NotificationMessage{
		Type:      NotificationEmail,
		Recipient: "finance-ops@example.com",
		Subject:   subject,
		Message:   fmt.Sprintf("Workspace %s: %d obligations advanced, %d failed.", workspaceID, processed, failed),
		Priority:  priority,
		Metadata: map[string]string{
			"workspace_id": workspaceID,
			"processed":    fmt.Sprintf("%d", processed),
			"failed":       fmt.Sprintf("%d", failed),
		},
		CreatedAt: time.Now(),
	})
}

func (s *NotificationService) enqueue(ctx context.Context, notification NotificationMessage) {
	select {
	case s.messageQueue <- notification:
		s.logger.Info("Notification queued",
			slog.String("type", string(notification.Type)),
			slog.String("subject", notification.Subject))
	case <-ctx.Done():
		s.logger.Warn("Notification dropped, context cancelled",
			slog.String("subject", notification.Subject))
	}
}

func (s *NotificationService) startWorkers() {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
}

func (s *NotificationService) worker(id int) {
	defer s.wg.Done()

	s.logger.Info("Notification worker started", slog.Int("worker_id", id))

	for {
		select {
		case msg := <-s.messageQueue:
			s.processNotification(msg, id)
		case <-s.shutdownChan:
			s.logger.Info("Notification worker stopping", slog.Int("worker_id", id))
			return
		}
	}
}

func (s *NotificationService) processNotification(msg NotificationMessage, workerID int) {
	startTime := time.Now()
	var err error

	switch msg.Type {
	case NotificationEmail:
		err = s.emailService.SendEmail(msg.Recipient, msg.Subject, msg.Message)
	case NotificationSMS:
		err = s.smsService.SendSMS(msg.Recipient, msg.Message)
	case NotificationSlack:
		err = s.slackService.SendMessage(msg.Recipient, msg.Message)
	default:
		err = fmt.Errorf("unknown notification type: %s", msg.Type)
	}

	duration := time.Since(startTime)

	if err != nil {
		s.logger.Error("Failed to send notification",
			slog.String("type", string(msg.Type)),
			slog.String("recipient", msg.Recipient),
			slog.String("error", err.Error()),
			slog.Int("worker_id", workerID),
			slog.Duration("duration", duration))
	} else {
		s.logger.Info("Notification sent successfully",
			slog.String("type", string(msg.Type)),
			slog.String("recipient", msg.Recipient),
			slog.Int("worker_id", workerID),
			slog.Duration("duration", duration))
	}
}

func (s *NotificationService) Shutdown(ctx context.Context) error {
	close(s.shutdownChan)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Notification service shutdown complete")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type MockEmailService struct {
	SentEmails []struct {
		To      string
		Subject string
		Body    string
	}
}

func (m *MockEmailService) SendEmail(to, subject, body string) error {
	m.SentEmails = append(m.SentEmails, struct {
		To      string
		Subject string
		Body    string
	}{to, subject, body})
	return nil
}

type MockSMSService struct {
	SentSMS []struct {
		To      string
		Message string
	}
}

func (m *MockSMSService) SendSMS(to, message string) error {
	m.SentSMS = append(m.SentSMS, struct {
		To      string
		Message string
	}{to, message})
	return nil
}

type MockSlackService struct {
	SentMessages []struct {
		Channel string
		Message string
	}
}

func (m *MockSlackService) SendMessage(channel, message string) error {
	m.SentMessages = append(m.SentMessages, struct {
		Channel string
		Message string
	}{channel, message})
	return nil
}
