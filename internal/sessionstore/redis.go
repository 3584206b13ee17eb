package sessionstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/DoyleJ11/lol-inhouse-backend/internal/types"
)

const (
	keyPrefix = "inhouse:session:"
	onlineKey = "inhouse:sessions:online"
)

// unbindIfChannel deletes KEYS[1] and its online member when the channel matches.
var unbindIfChannel = redis.NewScript(`
if redis.call("HGET", KEYS[1], "channel") == ARGV[1] then
	redis.call("DEL", KEYS[1])
	redis.call("ZREM", KEYS[2], ARGV[2])
	return 1
end
return 0
`)

// touch refreshes the TTL and heartbeat when the channel matches.
var touch = redis.NewScript(`
if redis.call("HGET", KEYS[1], "channel") == ARGV[1] then
	redis.call("PEXPIRE", KEYS[1], ARGV[3])
	redis.call("HSET", KEYS[1], "last_heartbeat", ARGV[4])
	redis.call("ZADD", KEYS[2], ARGV[5], ARGV[2])
	return 1
end
return 0
`)

type Redis struct {
	client redis.UniversalClient
}

func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

func sessionKey(p types.PlayerID) string { return keyPrefix + p.String() }

func (r *Redis) Bind(ctx context.Context, b Binding, ttl time.Duration) error {
	key := sessionKey(b.Player)
	expires := b.LastHeartbeat.Add(ttl)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			"channel", b.ChannelID,
			"instance", b.Instance,
			"remote_addr", b.RemoteAddr,
			"user_agent", b.UserAgent,
			"connected_at", b.ConnectedAt.UnixMilli(),
			"identified_at", b.IdentifiedAt.UnixMilli(),
			"last_heartbeat", b.LastHeartbeat.UnixMilli(),
		)
		pipe.PExpire(ctx, key, ttl)
		pipe.ZAdd(ctx, onlineKey, redis.Z{Score: float64(expires.UnixMilli()), Member: b.Player.String()})
		return nil
	})
	return wrap("bind", err)
}

func (r *Redis) Lookup(ctx context.Context, player types.PlayerID) (Binding, bool, error) {
	fields, err := r.client.HGetAll(ctx, sessionKey(player)).Result()
	if err != nil {
		return Binding{}, false, wrap("lookup", err)
	}
	if len(fields) == 0 || fields["channel"] == "" {
		return Binding{}, false, nil
	}
	return Binding{
		Player:        player,
		ChannelID:     fields["channel"],
		Instance:      fields["instance"],
		RemoteAddr:    fields["remote_addr"],
		UserAgent:     fields["user_agent"],
		ConnectedAt:   millis(fields["connected_at"]),
		IdentifiedAt:  millis(fields["identified_at"]),
		LastHeartbeat: millis(fields["last_heartbeat"]),
	}, true, nil
}

func (r *Redis) Unbind(ctx context.Context, player types.PlayerID) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, sessionKey(player))
		pipe.ZRem(ctx, onlineKey, player.String())
		return nil
	})
	return wrap("unbind", err)
}

func (r *Redis) UnbindIfChannel(ctx context.Context, player types.PlayerID, channelID string) (bool, error) {
	n, err := unbindIfChannel.Run(ctx, r.client, []string{sessionKey(player), onlineKey}, channelID, player.String()).Int()
	if err != nil {
		return false, wrap("unbind if channel", err)
	}
	return n == 1, nil
}

func (r *Redis) Touch(ctx context.Context, player types.PlayerID, channelID string, ttl time.Duration) (bool, error) {
	now := time.Now()
	n, err := touch.Run(ctx, r.client, []string{sessionKey(player), onlineKey},
		channelID, player.String(), ttl.Milliseconds(), now.UnixMilli(), now.Add(ttl).UnixMilli(),
	).Int()
	if err != nil {
		return false, wrap("touch", err)
	}
	return n == 1, nil
}

func (r *Redis) CountOnline(ctx context.Context) (int, error) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	var card *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, onlineKey, "-inf", now)
		card = pipe.ZCard(ctx, onlineKey)
		return nil
	})
	if err != nil {
		return 0, wrap("count", err)
	}
	return int(card.Val()), nil
}

func wrap(op string, err error) error {
	if err == nil || errors.Is(err, redis.Nil) {
		return nil
	}
	return fmt.Errorf("redis %s: %w: %w", op, ErrUnavailable, err)
}

func millis(raw string) time.Time {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
