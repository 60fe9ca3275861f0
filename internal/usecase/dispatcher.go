package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/paincake00/geopromo/internal/clock"
	"github.com/paincake00/geopromo/internal/entity"
	"github.com/paincake00/geopromo/internal/metrics"
)

const (
	defaultShards         = 16
	defaultQueueSize      = 256
	defaultProcessTimeout = 5 * time.Second
	defaultIdleTTL        = 30 * time.Minute
)

// UpdateProcessor обрабатывает обновление на трекере воркера.
type UpdateProcessor interface {
	ProcessUpdate(ctx context.Context, tracker *Tracker, upd entity.LocationUpdate) (UpdateResult, error)
}

// Dispatcher распределяет обновления координат по шардам по хешу идентификатора устройства.
// Каждый шард - одна горутина со своей ограниченной очередью и своим Tracker, поэтому
// обновления одного устройства обрабатываются строго по порядку поступления, а разные шарды работают параллельно.
type Dispatcher struct {
	proc       UpdateProcessor
	newTracker func() *Tracker

	shards    []*shard
	queueSize int
	timeout   time.Duration
	idleTTL   time.Duration
	clock     clock.Clock
	log       *zap.Logger
	metrics   *metrics.Collector

	once sync.Once
	done chan struct{}
}

type shard struct {
	id      string
	jobs    chan job
	tracker *Tracker
}

type job struct {
	ctx   context.Context
	upd   entity.LocationUpdate
	reply chan jobResult
}

type jobResult struct {
	res UpdateResult
	err error
}

type DispatcherOption func(*Dispatcher)

func WithShards(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.shards = make([]*shard, n)
		}
	}
}

func WithQueueSize(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queueSize = n
		}
	}
}

// WithProcessTimeout ограничивает время обработки одного обновления.
func WithProcessTimeout(t time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if t > 0 {
			d.timeout = t
		}
	}
}

// WithIdleTTL задает, через сколько простоя состояние устройства выгружается из памяти. 0 отключает выгрузку.
func WithIdleTTL(t time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if t >= 0 {
			d.idleTTL = t
		}
	}
}

func WithDispatcherClock(c clock.Clock) DispatcherOption {
	return func(d *Dispatcher) { d.clock = c }
}

func WithDispatcherLogger(l *zap.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.log = l }
}

func WithDispatcherMetrics(m *metrics.Collector) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// NewDispatcher создает диспетчер. newTracker вызывается по одному разу на шард.
func NewDispatcher(proc UpdateProcessor, newTracker func() *Tracker, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		proc:       proc,
		newTracker: newTracker,
		shards:     make([]*shard, defaultShards),
		queueSize:  defaultQueueSize,
		timeout:    defaultProcessTimeout,
		idleTTL:    defaultIdleTTL,
		clock:      clock.NewSystem(),
		log:        zap.NewNop(),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	for i := range d.shards {
		d.shards[i] = &shard{
			id:      strconv.Itoa(i),
			jobs:    make(chan job, d.queueSize),
			tracker: newTracker(),
		}
	}
	return d
}

// Run запускает воркеры шардов и блокируется до отмены ctx. Повторный вызов возвращает ошибку.
func (d *Dispatcher) Run(ctx context.Context) error {
	started := false
	d.once.Do(func() { started = true })
	if !started {
		return errors.New("dispatcher already started")
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, sh := range d.shards {
		g.Go(func() error {
			d.runShard(gctx, sh)
			return nil
		})
	}
	d.log.Info("dispatcher started", zap.Int("shards", len(d.shards)), zap.Int("queue_size", d.queueSize))

	err := g.Wait()
	close(d.done)
	d.log.Info("dispatcher stopped")
	return err
}

// Submit передает обновление воркеру шарда устройства и ждет результата.
// Если очередь шарда заполнена до отмены ctx, возвращается entity.ErrQueueTimeout.
// Принятое в очередь обновление всегда дожидается ответа шарда: отмена ctx прерывает обработку,
// но уже записанные переходы возвращаются вызывающему вместе с ошибкой.
func (d *Dispatcher) Submit(ctx context.Context, upd entity.LocationUpdate) (UpdateResult, error) {
	select {
	case <-d.done:
		return UpdateResult{}, entity.ErrDispatcherClosed
	default:
	}

	sh := d.shardFor(upd.DeviceID)
	j := job{ctx: ctx, upd: upd, reply: make(chan jobResult, 1)}

	select {
	case sh.jobs <- j:
		d.metrics.SetQueueDepth(sh.id, len(sh.jobs))
	case <-ctx.Done():
		return UpdateResult{}, fmt.Errorf("%w: %w", entity.ErrQueueTimeout, ctx.Err())
	case <-d.done:
		return UpdateResult{}, entity.ErrDispatcherClosed
	}

	select {
	case r := <-j.reply:
		return r.res, r.err
	case <-d.done:
		// шард мог ответить перед остановкой
		select {
		case r := <-j.reply:
			return r.res, r.err
		default:
			return UpdateResult{}, entity.ErrDispatcherClosed
		}
	}
}

func (d *Dispatcher) shardFor(deviceID string) *shard {
	return d.shards[xxhash.Sum64String(deviceID)%uint64(len(d.shards))]
}

func (d *Dispatcher) runShard(ctx context.Context, sh *shard) {
	var evict <-chan time.Time
	if d.idleTTL > 0 {
		every := d.idleTTL / 2
		if every < time.Second {
			every = time.Second
		}
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		evict = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			d.drain(sh)
			return
		case j := <-sh.jobs:
			d.handle(sh, j)
			d.metrics.SetQueueDepth(sh.id, len(sh.jobs))
		case <-evict:
			d.evictIdle(ctx, sh)
		}
	}
}

func (d *Dispatcher) evictIdle(ctx context.Context, sh *shard) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	if n := sh.tracker.EvictIdle(ctx, d.clock.Now(), d.idleTTL); n > 0 {
		d.log.Debug("evicted idle devices", zap.String("shard", sh.id), zap.Int("count", n))
	}
	d.metrics.SetTrackedDevices(sh.id, sh.tracker.Devices())
}

func (d *Dispatcher) handle(sh *shard, j job) {
	if err := j.ctx.Err(); err != nil {
		j.reply <- jobResult{err: fmt.Errorf("%w: %w", entity.ErrQueueTimeout, err)}
		return
	}
	ctx, cancel := context.WithTimeout(j.ctx, d.timeout)
	defer cancel()

	res, err := d.proc.ProcessUpdate(ctx, sh.tracker, j.upd)
	if err != nil {
		d.log.Debug("location update rejected",
			zap.String("shard", sh.id),
			zap.String("device_id", j.upd.DeviceID),
			zap.Error(err))
	}
	j.reply <- jobResult{res: res, err: err}
}

func (d *Dispatcher) drain(sh *shard) {
	for {
		select {
		case j := <-sh.jobs:
			j.reply <- jobResult{err: entity.ErrDispatcherClosed}
		default:
			return
		}
	}
}
