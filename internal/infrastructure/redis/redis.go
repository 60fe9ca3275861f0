package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/paincake00/geopromo/internal/entity"
	"github.com/paincake00/geopromo/internal/usecase"
)

const (
	zonesKeyPrefix      = "zones:"
	membershipKeyPrefix = "membership:"
	lastSeenField       = "_last"

	defaultZonesTTL      = 60 * time.Second
	defaultMembershipTTL = 7 * 24 * time.Hour
)

// RedisRepo реализация очереди, кеша зон и снимков членства на основе Redis.
type RedisRepo struct {
	Client        *redis.Client
	ZonesTTL      time.Duration
	MembershipTTL time.Duration
}

// New создает новое подключение к Redis.
func New(ctx context.Context, addr, password string, db int) (*RedisRepo, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewFromClient(client), nil
}

// NewFromClient оборачивает готовый клиент.
func NewFromClient(client *redis.Client) *RedisRepo {
	return &RedisRepo{Client: client, ZonesTTL: defaultZonesTTL, MembershipTTL: defaultMembershipTTL}
}

// Close закрывает соединение.
func (r *RedisRepo) Close() {
	r.Client.Close()
}

// Ping проверяет доступность Redis.
func (r *RedisRepo) Ping(ctx context.Context) error {
	return r.Client.Ping(ctx).Err()
}

// Queue (Очередь)

// Enqueue добавляет задачу в очередь списка (LPush).
func (r *RedisRepo) Enqueue(ctx context.Context, queueName string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return r.Client.LPush(ctx, queueName, data).Err()
}

// Dequeue извлекает задачу из очереди (BRPop - блокирующее чтение до отмены ctx).
func (r *RedisRepo) Dequeue(ctx context.Context, queueName string) (string, error) {
	result, err := r.Client.BRPop(ctx, 0, queueName).Result()
	if err != nil {
		return "", err
	}
	// result содержит [имя_очереди, значение]
	if len(result) < 2 {
		return "", fmt.Errorf("redis pop unexpected result")
	}
	return result[1], nil
}

// Cache (Кеш зон)

func zonesKey(companyID string) string {
	return zonesKeyPrefix + companyID
}

// SetZones сохраняет активные зоны компании в кеш с TTL.
func (r *RedisRepo) SetZones(ctx context.Context, companyID string, zones []entity.Zone) error {
	data, err := json.Marshal(zones)
	if err != nil {
		return err
	}
	return r.Client.Set(ctx, zonesKey(companyID), data, r.ZonesTTL).Err()
}

// GetZones получает зоны компании из кеша. Промах кеша - (nil, nil).
func (r *RedisRepo) GetZones(ctx context.Context, companyID string) ([]entity.Zone, error) {
	val, err := r.Client.Get(ctx, zonesKey(companyID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil // кеш пуст
	}
	if err != nil {
		return nil, err
	}

	zones := []entity.Zone{}
	if err := json.Unmarshal(val, &zones); err != nil {
		return nil, err
	}
	return zones, nil
}

// InvalidateZones удаляет зоны компании из кеша.
func (r *RedisRepo) InvalidateZones(ctx context.Context, companyID string) error {
	return r.Client.Del(ctx, zonesKey(companyID)).Err()
}

// Membership (Снимки членства)
//
// Снимок хранится в хеше membership:{deviceID}: поле _last - момент последнего обновления,
// остальные поля - идентификаторы открытых зон со временем входа (unix nano).

func membershipKey(deviceID string) string {
	return membershipKeyPrefix + deviceID
}

// LoadMembership читает снимок членства устройства. Отсутствие снимка - (nil, nil).
func (r *RedisRepo) LoadMembership(ctx context.Context, deviceID string) (*usecase.MembershipSnapshot, error) {
	fields, err := r.Client.HGetAll(ctx, membershipKey(deviceID)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}

	snap := &usecase.MembershipSnapshot{Open: make(map[string]time.Time, len(fields))}
	for field, raw := range fields {
		ns, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("membership %s: field %s: %w", deviceID, field, err)
		}
		at := time.Unix(0, ns).UTC()
		if field == lastSeenField {
			snap.LastSeen = at
			continue
		}
		snap.Open[field] = at
	}
	return snap, nil
}

// SaveMembership полностью заменяет снимок членства устройства.
// Снимок с открытыми членствами хранится без срока жизни, иначе после его истечения
// устройство повторно войдет в зону без выхода.
func (r *RedisRepo) SaveMembership(ctx context.Context, deviceID string, snap usecase.MembershipSnapshot) error {
	key := membershipKey(deviceID)
	values := make([]interface{}, 0, 2*(len(snap.Open)+1))
	values = append(values, lastSeenField, strconv.FormatInt(snap.LastSeen.UnixNano(), 10))
	for zoneID, at := range snap.Open {
		values = append(values, zoneID, strconv.FormatInt(at.UnixNano(), 10))
	}

	_, err := r.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, values...)
		if r.MembershipTTL > 0 && len(snap.Open) == 0 {
			pipe.Expire(ctx, key, r.MembershipTTL)
		}
		return nil
	})
	return err
}
