package presence

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/models"
)

// RedisStore implements Store using Redis GEO commands for position and
// a per-driver hash for the online flag and last update timestamp.
type RedisStore struct {
	client *redis.Client
	geoKey string
}

func NewRedisStore(addr, password, geoKey string) *RedisStore {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisStore{client: c, geoKey: geoKey}
}

func (r *RedisStore) UpdateLocation(ctx context.Context, driverID string, loc models.Coord, at time.Time) error {
	if _, err := r.client.GeoAdd(ctx, r.geoKey, &redis.GeoLocation{
		Longitude: loc.Lng, Latitude: loc.Lat, Name: driverID,
	}).Result(); err != nil {
		return err
	}
	return r.client.HSet(ctx, metaKey(driverID), map[string]interface{}{
		"last_update": at.Format(time.RFC3339Nano),
	}).Err()
}

func (r *RedisStore) SetOnline(ctx context.Context, driverID string, online bool) error {
	return r.client.HSet(ctx, metaKey(driverID), map[string]interface{}{
		"online": strconv.FormatBool(online),
	}).Err()
}

func (r *RedisStore) Get(ctx context.Context, driverID string) (models.Presence, error) {
	p := models.Presence{DriverID: driverID}
	pos, err := r.client.GeoPos(ctx, r.geoKey, driverID).Result()
	if err != nil {
		return p, err
	}
	if len(pos) > 0 && pos[0] != nil {
		p.Loc.Lat = pos[0].Latitude
		p.Loc.Lng = pos[0].Longitude
	}
	m, err := r.client.HGetAll(ctx, metaKey(driverID)).Result()
	if err != nil {
		return p, err
	}
	if len(m) == 0 && (len(pos) == 0 || pos[0] == nil) {
		return p, ErrUnknownDriver
	}
	if v, ok := m["online"]; ok {
		p.Online = v == "true"
	}
	if v, ok := m["last_update"]; ok {
		if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
			p.LastUpdate = ts
		}
	}
	return p, nil
}

func (r *RedisStore) Close() error { return r.client.Close() }

func metaKey(id string) string { return "courier:presence:" + id }
