// Package roster 对接造型师名录服务，结果缓存在 Redis
package roster

import (
	"Atelier/internal/api/config"
	"Atelier/internal/chat"
	"Atelier/internal/pkg/consts"
	"Atelier/internal/pkg/logger"
	"Atelier/internal/pkg/minio"
	"Atelier/internal/pkg/redis"
	"context"
	"fmt"
	log "log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
)

const (
	defaultTimeout  = 5 * time.Second
	defaultCacheTTL = 5 * time.Minute
)

// memberPayload 名录服务返回的成员
type memberPayload struct {
	ID          uint64   `json:"id"`
	Nickname    string   `json:"nickname"`
	AvatarKey   string   `json:"avatar_key"`
	Specialties []string `json:"specialties"`
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    []memberPayload `json:"data"`
}

// Client 同时实现 chat.Roster 与 chat.MemberDirectory
type Client struct {
	http     *resty.Client
	cacheTTL time.Duration
}

func NewClient(cfg config.RosterConfig) *Client {
	timeout := defaultTimeout
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}
	ttl := defaultCacheTTL
	if cfg.CacheTTL > 0 {
		ttl = time.Duration(cfg.CacheTTL) * time.Second
	}

	httpClient := resty.New().
		SetTransport(logger.NewHTTPTransport("roster")).
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(1).
		SetHeader("Accept", "application/json").
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal)
	if cfg.Token != "" {
		httpClient.SetAuthToken(cfg.Token)
	}

	return &Client{http: httpClient, cacheTTL: ttl}
}

// ListStaff 可被选择的造型师，优先读缓存
func (c *Client) ListStaff(ctx context.Context) ([]chat.Member, error) {
	if cached, err := redis.GetValue(ctx, consts.RosterStaffKey); err == nil && cached != "" {
		var members []chat.Member
		if err = json.Unmarshal([]byte(cached), &members); err == nil {
			return members, nil
		}
		log.WarnContext(ctx, "discard corrupt roster cache", "err", err)
	}
	return c.RefreshStaff(ctx)
}

// RefreshStaff 绕过缓存拉取名录并回写
func (c *Client) RefreshStaff(ctx context.Context) ([]chat.Member, error) {
	payload, err := c.fetch(ctx, "/staff", nil)
	if err != nil {
		return nil, err
	}
	members := c.toMembers(ctx, payload)

	data, err := json.Marshal(members)
	if err == nil {
		if err = redis.SetWithExpiration(ctx, consts.RosterStaffKey, data, c.cacheTTL); err != nil {
			log.WarnContext(ctx, "cache roster failed", "err", err)
		}
	}
	c.cacheMembers(ctx, members)
	return members, nil
}

// Members 按 ID 批量查资料，缓存未命中的再请求名录服务
func (c *Client) Members(ctx context.Context, ids []uint64) (map[uint64]chat.Member, error) {
	out := make(map[uint64]chat.Member, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, memberKey(id))
	}
	cached, err := redis.MGetValues(ctx, keys...)
	if err != nil {
		log.WarnContext(ctx, "read member cache failed", "err", err)
		cached = nil
	}

	var missing []string
	for _, id := range ids {
		raw, ok := cached[memberKey(id)]
		if ok {
			var m chat.Member
			if json.Unmarshal([]byte(raw), &m) == nil {
				out[id] = m
				continue
			}
		}
		missing = append(missing, strconv.FormatUint(id, 10))
	}
	if len(missing) == 0 {
		return out, nil
	}

	payload, err := c.fetch(ctx, "/members", map[string]string{"ids": strings.Join(missing, ",")})
	if err != nil {
		return out, err
	}
	fetched := c.toMembers(ctx, payload)
	for _, m := range fetched {
		out[m.ID] = m
	}
	c.cacheMembers(ctx, fetched)
	return out, nil
}

func (c *Client) fetch(ctx context.Context, path string, query map[string]string) ([]memberPayload, error) {
	var env envelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(query).
		SetResult(&env).
		Get(path)
	if err != nil {
		return nil, fmt.Errorf("roster %s: %w", path, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("roster %s: status %d", path, resp.StatusCode())
	}
	if env.Code != 0 && env.Code != 200 {
		return nil, fmt.Errorf("roster %s: code %d %s", path, env.Code, env.Message)
	}
	return env.Data, nil
}

func (c *Client) toMembers(ctx context.Context, payload []memberPayload) []chat.Member {
	members := make([]chat.Member, 0, len(payload))
	for _, p := range payload {
		avatar := p.AvatarKey
		if avatar == "" {
			avatar = consts.DefaultAvatarURL
		}
		members = append(members, chat.Member{
			ID:          p.ID,
			Name:        p.Nickname,
			Avatar:      minio.AvatarURL(ctx, avatar),
			Specialties: p.Specialties,
		})
	}
	return members
}

func (c *Client) cacheMembers(ctx context.Context, members []chat.Member) {
	values := make(map[string]string, len(members))
	for _, m := range members {
		data, err := json.Marshal(m)
		if err != nil {
			continue
		}
		values[memberKey(m.ID)] = string(data)
	}
	if err := redis.SetManyWithExpiration(ctx, values, c.cacheTTL); err != nil {
		log.WarnContext(ctx, "cache members failed", "count", len(values), "err", err)
	}
}

func memberKey(id uint64) string {
	return consts.RosterMemberKey + strconv.FormatUint(id, 10)
}
