package usecase

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/paincake00/geopromo/internal/entity"
	"github.com/paincake00/geopromo/internal/metrics"
)

// NotificationQueue имя очереди задач доставки промоакций.
const NotificationQueue = "promotion_notifications"

// PromotionResolver источник промоакций для перехода.
type PromotionResolver interface {
	PromotionsFor(ctx context.Context, tr entity.Transition) ([]string, error)
}

// UpdateResult итог обработки одного обновления координат.
type UpdateResult struct {
	Events     []entity.Event             `json:"events"`
	Promotions []entity.ZonePromotions    `json:"promotions"`
	Failed     []entity.TransitionFailure `json:"failed,omitempty"`
}

// GeoService обрабатывает обновление координат: переходы, промоакции и постановку уведомлений в очередь.
type GeoService struct {
	Rules     PromotionResolver
	Queue     QueueRepository
	QueueName string
	Log       *zap.Logger
	Metrics   *metrics.Collector
}

// NewGeoService создает новый экземпляр гео-сервиса. queue может быть nil: тогда уведомления не отправляются.
func NewGeoService(rules PromotionResolver, q QueueRepository, log *zap.Logger, m *metrics.Collector) *GeoService {
	if log == nil {
		log = zap.NewNop()
	}
	return &GeoService{
		Rules:     rules,
		Queue:     q,
		QueueName: NotificationQueue,
		Log:       log,
		Metrics:   m,
	}
}

// ProcessUpdate прогоняет обновление через трекер устройства и для каждого входа в зону определяет промоакции.
// Трекер должен принадлежать вызывающему воркеру.
func (s *GeoService) ProcessUpdate(ctx context.Context, tracker *Tracker, upd entity.LocationUpdate) (UpdateResult, error) {
	ctx, span := otel.Tracer("geopromo/usecase").Start(ctx, "GeoService.ProcessUpdate")
	defer span.End()
	span.SetAttributes(
		attribute.String("device.id", upd.DeviceID),
		attribute.String("company.id", upd.CompanyID),
	)

	start := time.Now()
	res, err := s.process(ctx, tracker, upd)
	outcome := outcomeOf(err)
	s.Metrics.ObserveUpdate(outcome, time.Since(start).Seconds())

	span.SetAttributes(
		attribute.Int("events", len(res.Events)),
		attribute.Int("failed", len(res.Failed)),
		attribute.String("outcome", outcome),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	return res, err
}

func (s *GeoService) process(ctx context.Context, tracker *Tracker, upd entity.LocationUpdate) (UpdateResult, error) {
	tracked, err := tracker.Process(ctx, upd)
	var partial *entity.PartialError
	if err != nil && !errors.As(err, &partial) {
		return UpdateResult{}, err
	}

	res := UpdateResult{
		Events:     tracked.Events,
		Promotions: []entity.ZonePromotions{},
		Failed:     tracked.Failed,
	}
	if res.Events == nil {
		res.Events = []entity.Event{}
	}

	for _, ev := range tracked.Events {
		s.Metrics.IncTransition(string(ev.Kind))
		if ev.Kind != entity.EventEnter {
			continue
		}
		tr := entity.Transition{ZoneID: ev.ZoneID, Kind: ev.Kind, Timestamp: ev.OccurredAt}
		promos, err := s.Rules.PromotionsFor(ctx, tr)
		if err != nil {
			res.Failed = append(res.Failed, entity.NewTransitionFailure(tr, entity.StageRules, err))
			continue
		}
		if len(promos) == 0 {
			continue
		}
		s.Metrics.AddPromotions(len(promos))
		res.Promotions = append(res.Promotions, entity.ZonePromotions{
			ZoneID:       ev.ZoneID,
			EventID:      ev.ID,
			PromotionIDs: promos,
		})
		s.notify(ctx, upd, ev, promos)
	}

	if len(res.Failed) > 0 {
		return res, &entity.PartialError{Failed: res.Failed}
	}
	return res, nil
}

// notify ставит задачу доставки в очередь. Ошибка только логируется: доставка - забота внешнего слоя.
func (s *GeoService) notify(ctx context.Context, upd entity.LocationUpdate, ev entity.Event, promos []string) {
	if s.Queue == nil {
		return
	}
	payload := entity.PromotionNotification{
		Event:        "zone_entered",
		DeviceID:     upd.DeviceID,
		CompanyID:    upd.CompanyID,
		ZoneID:       ev.ZoneID,
		EventID:      ev.ID,
		PromotionIDs: promos,
		EnteredAt:    ev.OccurredAt.Format(time.RFC3339),
	}
	if err := s.Queue.Enqueue(ctx, s.QueueName, payload); err != nil {
		s.Metrics.Notification("enqueue", "error")
		s.Log.Error("failed to enqueue promotion notification",
			zap.String("device_id", upd.DeviceID),
			zap.String("zone_id", ev.ZoneID),
			zap.Error(err))
		return
	}
	s.Metrics.Notification("enqueue", "ok")
}

func outcomeOf(err error) string {
	var partial *entity.PartialError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &partial):
		if errors.Is(err, entity.ErrStorageFailure) {
			return "partial_record"
		}
		return "partial_rules"
	case errors.Is(err, entity.ErrInvalidCoordinates):
		return "invalid_coordinates"
	case errors.Is(err, entity.ErrUnknownCompany):
		return "unknown_company"
	case errors.Is(err, entity.ErrUnknownDevice):
		return "unknown_device"
	case errors.Is(err, entity.ErrOutOfOrderUpdate):
		return "out_of_order"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}
