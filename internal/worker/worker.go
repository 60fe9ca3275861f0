package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/paincake00/geopromo/internal/entity"
	"github.com/paincake00/geopromo/internal/metrics"
	"github.com/paincake00/geopromo/internal/usecase"
)

const (
	defaultMaxRetries  = 3
	defaultConcurrency = 8
	defaultInterval    = time.Second
)

// Worker отвечает за фоновую доставку уведомлений о промоакциях во внешний сервис (вебхук).
type Worker struct {
	Queue           usecase.QueueRepository
	QueueName       string
	WebhookURL      string
	MaxRetries      int
	InitialInterval time.Duration
	Client          *http.Client
	Log             *zap.Logger
	Metrics         *metrics.Collector

	sem chan struct{}
	wg  sync.WaitGroup
}

// New создает новый экземпляр воркера.
func New(q usecase.QueueRepository, webhookURL string, maxRetries int, log *zap.Logger, m *metrics.Collector) *Worker {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Worker{
		Queue:           q,
		QueueName:       usecase.NotificationQueue, // та же очередь, что и в GeoService
		WebhookURL:      webhookURL,
		MaxRetries:      maxRetries,
		InitialInterval: defaultInterval,
		Client:          &http.Client{Timeout: 5 * time.Second},
		Log:             log,
		Metrics:         m,
		sem:             make(chan struct{}, defaultConcurrency),
	}
}

// Start запускает цикл обработки задач и блокируется до отмены ctx.
// Перед возвратом дожидается задач, которые уже отправляются.
func (w *Worker) Start(ctx context.Context) {
	w.Log.Info("notification worker started", zap.String("queue", w.QueueName), zap.String("webhook_url", w.WebhookURL))
	defer func() {
		w.wg.Wait()
		w.Log.Info("notification worker stopped")
	}()

	for {
		// Dequeue блокируется до появления задачи; при отмене ctx клиент Redis вернет ошибку.
		payload, err := w.Queue.Dequeue(ctx, w.QueueName)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.Metrics.Notification("dequeue", "error")
			w.Log.Warn("dequeue failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second): // пауза при ошибке
			}
			continue
		}

		select {
		case w.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}
		w.wg.Add(1)
		go func() {
			defer func() {
				<-w.sem
				w.wg.Done()
			}()
			w.processTask(ctx, payload)
		}()
	}
}

// processTask доставляет одно уведомление с экспоненциальными повторами.
func (w *Worker) processTask(ctx context.Context, data string) {
	var n entity.PromotionNotification
	if err := json.Unmarshal([]byte(data), &n); err != nil {
		w.Metrics.Notification("deliver", "invalid")
		w.Log.Error("dropping malformed notification", zap.String("payload", data), zap.Error(err))
		return
	}
	log := w.Log.With(zap.String("device_id", n.DeviceID), zap.String("zone_id", n.ZoneID), zap.String("event_id", n.EventID))

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = w.InitialInterval

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, w.sendWebhook(ctx, data)
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(w.MaxRetries)),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn("webhook delivery failed, retrying", zap.Duration("retry_in", next), zap.Error(err))
		}),
	)
	if err != nil {
		w.Metrics.Notification("deliver", "error")
		log.Error("given up on notification", zap.Error(err))
		return
	}
	w.Metrics.Notification("deliver", "ok")
	log.Debug("notification delivered")
}

// sendWebhook выполняет HTTP POST. Ответы 4xx не повторяются.
func (w *Worker) sendWebhook(ctx context.Context, data string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.WebhookURL, bytes.NewBufferString(data))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("server returned status: %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return backoff.Permanent(fmt.Errorf("server rejected notification: %d", resp.StatusCode))
	}
	return nil
}
