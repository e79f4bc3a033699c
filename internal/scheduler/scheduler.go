package scheduler

import (
	"context"
	"time"

	"github.com/finlink/finlink/internal/service"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Scheduler runs the periodic maintenance jobs: pending-link expiry, due
// syncs, credit-card cycle close and the installment overdue and reminder
// sweeps.
type Scheduler struct {
	svc  *service.Service
	log  *logrus.Logger
	cron *cron.Cron
}

func New(svc *service.Service, log *logrus.Logger) *Scheduler {
	return &Scheduler{svc: svc, log: log, cron: cron.New()}
}

// Start registers every job and starts the cron loop.
func (s *Scheduler) Start() error {
	jobs := []struct {
		spec string
		name string
		run  func()
	}{
		{"@every 1m", "expire_pending_links", s.expirePending},
		{"@every 5m", "sync_due_connections", s.syncDue},
		{"@daily", "close_card_cycles", s.closeCycles},
		{"@daily", "overdue_installments", s.markOverdue},
		{"@daily", "upcoming_reminders", s.remindUpcoming},
	}
	for _, job := range jobs {
		if _, err := s.cron.AddFunc(job.spec, job.run); err != nil {
			return err
		}
		s.log.Infof("Scheduled job %s (%s)", job.name, job.spec)
	}
	s.cron.Start()
	return nil
}

// Stop halts the cron loop and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) expirePending() {
	expired, err := s.svc.ExpirePending(context.Background())
	if err != nil {
		s.log.Errorf("Pending-link expiry sweep failed: %v", err)
		return
	}
	if expired > 0 {
		s.log.Infof("Expired %d pending links", expired)
	}
}

func (s *Scheduler) syncDue() {
	s.svc.SyncDue(context.Background())
}

func (s *Scheduler) closeCycles() {
	closed, err := s.svc.CloseCreditCardCycles(context.Background(), time.Now())
	if err != nil {
		s.log.Errorf("Cycle close sweep failed: %v", err)
		return
	}
	if closed > 0 {
		s.log.Infof("Closed %d credit card cycles", closed)
	}
}

func (s *Scheduler) remindUpcoming() {
	sent, err := s.svc.RemindUpcomingInstallments(context.Background(), time.Now())
	if err != nil {
		s.log.Errorf("Upcoming reminder sweep failed: %v", err)
		return
	}
	if sent > 0 {
		s.log.Infof("Sent %d upcoming installment reminders", sent)
	}
}

func (s *Scheduler) markOverdue() {
	overdue, err := s.svc.MarkOverdueInstallments(context.Background(), time.Now())
	if err != nil {
		s.log.Errorf("Overdue installment sweep failed: %v", err)
		return
	}
	if overdue > 0 {
		s.log.Infof("Marked %d installments overdue", overdue)
	}
}
