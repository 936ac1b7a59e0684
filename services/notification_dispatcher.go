package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"sleepTaxAPI/internal/types/notification"
)

type PushNotificationProvider interface {
	SendPush(ctx context.Context, tokens []notification.DeviceToken, title, body string, data map[string]any) error
}

// NotificationDispatcher sends queued notifications on a fixed pool of workers.
type NotificationDispatcher struct {
	pushProvider PushNotificationProvider
	workers      int
	jobQueue     chan *DispatchJob
	stopChan     chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup
	mu           sync.RWMutex
}

type DispatchJob struct {
	Notification *notification.Notification
	Tokens       []notification.DeviceToken
}

const dispatchQueueSize = 100

func NewNotificationDispatcher(workers int) *NotificationDispatcher {
	if workers < 1 {
		workers = 1
	}
	d := &NotificationDispatcher{
		workers:  workers,
		jobQueue: make(chan *DispatchJob, dispatchQueueSize),
		stopChan: make(chan struct{}),
	}
	d.startWorkers()
	return d
}

// SetPushProvider injects the real FCM provider from main.go.
func (d *NotificationDispatcher) SetPushProvider(provider PushNotificationProvider) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pushProvider = provider
}

func (d *NotificationDispatcher) provider() PushNotificationProvider {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.pushProvider
}

func (d *NotificationDispatcher) startWorkers() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
}

func (d *NotificationDispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case job := <-d.jobQueue:
			d.processJob(job)
		case <-d.stopChan:
			return
		}
	}
}

func (d *NotificationDispatcher) processJob(job *DispatchJob) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	notif := job.Notification
	provider := d.provider()
	if len(job.Tokens) == 0 || provider == nil {
		zap.S().Debugf("Skipping push for user %s: tokens=%d providerSet=%v", notif.UserID, len(job.Tokens), provider != nil)
		return
	}

	if err := provider.SendPush(ctx, job.Tokens, notif.Title, notif.Body, notif.Data); err != nil {
		zap.S().Warnf("Push %s failed for user %s: %v", notif.Type, notif.UserID, err)
	}
}

// DispatchNotification queues a notification without blocking. When the queue
// is full the notification is dropped, so callers on a request path never wait.
func (d *NotificationDispatcher) DispatchNotification(notif *notification.Notification, tokens []notification.DeviceToken) {
	job := &DispatchJob{Notification: notif, Tokens: tokens}

	select {
	case <-d.stopChan:
		zap.S().Warnf("Dropping notification %s: dispatcher stopped", notif.ID)
		return
	default:
	}

	select {
	case d.jobQueue <- job:
		zap.S().Debugf("Notification %s queued for dispatch", notif.ID)
	default:
		zap.S().Warnf("Dropping notification %s for user %s: queue full", notif.ID, notif.UserID)
	}
}

// Stop the dispatcher gracefully. Queued jobs that no worker picked up are dropped.
func (d *NotificationDispatcher) Stop() {
	d.stopOnce.Do(func() {
		zap.S().Info("Stopping notification dispatcher...")
		close(d.stopChan)
		d.wg.Wait()
		zap.S().Info("Notification dispatcher stopped")
	})
}
