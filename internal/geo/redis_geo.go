package geo

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/abhijeeth-g/boots-backend/internal/models"
)

// RedisIndex implements Index on Redis GEO commands so multiple API nodes
// and the location consumer share one view of the fleet.
type RedisIndex struct {
	client *redis.Client
	key    string
	ctx    context.Context
}

func NewRedisIndex(addr, password, key string) *RedisIndex {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisIndex{client: c, key: key, ctx: context.Background()}
}

// Client exposes the underlying connection for readiness pings.
func (r *RedisIndex) Client() *redis.Client { return r.client }

func (r *RedisIndex) Upsert(loc models.CaptainLocation) {
	_, _ = r.client.GeoAdd(r.ctx, r.key, &redis.GeoLocation{
		Longitude: loc.Loc.Lon,
		Latitude:  loc.Loc.Lat,
		Name:      loc.CaptainID,
	}).Result()
	_ = r.client.HSet(r.ctx, metaKey(loc.CaptainID), map[string]interface{}{
		"rating":  strconv.FormatFloat(loc.Rating, 'f', -1, 64),
		"online":  strconv.FormatBool(loc.Online),
		"vehicle": loc.Vehicle,
		"updated": time.Now().Format(time.RFC3339),
	}).Err()
}

func (r *RedisIndex) Remove(captainID string) {
	_ = r.client.ZRem(r.ctx, r.key, captainID).Err()
	_ = r.client.Del(r.ctx, metaKey(captainID)).Err()
}

func (r *RedisIndex) Nearby(lat, lon, radiusM float64, limit int) []models.NearbyCaptain {
	res, err := r.client.GeoRadius(r.ctx, r.key, lon, lat, &redis.GeoRadiusQuery{
		Radius: radiusM, Unit: "m", WithCoord: true, WithDist: true, Count: limit, Sort: "ASC",
	}).Result()
	if err != nil {
		return nil
	}
	out := make([]models.NearbyCaptain, 0, len(res))
	for _, g := range res {
		c := models.NearbyCaptain{
			CaptainID: g.Name,
			Loc:       models.Coord{Lat: g.Latitude, Lon: g.Longitude},
			DistM:     g.Dist, // GeoRadius unit is meters per the query
		}
		if m, err := r.client.HGetAll(r.ctx, metaKey(g.Name)).Result(); err == nil {
			if v, ok := m["rating"]; ok {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					c.Rating = f
				}
			}
			if v, ok := m["online"]; ok {
				c.Online = v == "true"
			}
			c.Vehicle = m["vehicle"]
		}
		if !c.Online {
			continue
		}
		out = append(out, c)
	}
	return out
}

func metaKey(id string) string { return "captain:meta:" + id }
