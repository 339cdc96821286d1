package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/fixidiomas/backoffice/core"
	"github.com/fixidiomas/backoffice/core/billing"
)

// NewRedisConnection connects to redis and checks it answers within the configured timeout.
func NewRedisConnection(conf core.RedisConfig) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:         conf.Addr,
		Password:     conf.Password,
		DB:           conf.DB,
		DialTimeout:  conf.Timeout,
		ReadTimeout:  conf.Timeout,
		WriteTimeout: conf.Timeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), conf.Timeout)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "pinging redis")
	}
	return rdb, nil
}

// reportCache keeps one entry per (month, generation, today) and a set of entry keys per month for cleanup.
// Invalidation bumps the month's (or the global) generation, so a report computed before it is written under
// a key no reader asks for and expires with the TTL.
type reportCache struct {
	raw    *goredis.Client
	prefix string
	ttl    time.Duration
}

var _ billing.Cache = (*reportCache)(nil)

func NewReportCache(raw *goredis.Client, conf core.RedisConfig) billing.Cache {
	return &reportCache{raw: raw, prefix: conf.Prefix, ttl: conf.TTL}
}

func (c *reportCache) withPrefix(key string) string {
	return c.prefix + key
}

func reportKey(month billing.YearMonth, version string, today time.Time) string {
	return "report:" + month.String() + ":" + version + ":" + today.Format("2006-01-02")
}

func monthKey(month billing.YearMonth) string {
	return "reports:" + month.String()
}

func monthGenKey(month billing.YearMonth) string {
	return "reports:" + month.String() + ":gen"
}

const (
	monthsKey = "reports"
	genKey    = "reports:gen"
)

// version combines the global and the month generations, e.g. "2.5".
func (c *reportCache) version(ctx context.Context, month billing.YearMonth) (string, error) {
	gens, err := c.raw.MGet(ctx, c.withPrefix(genKey), c.withPrefix(monthGenKey(month))).Result()
	if err != nil {
		return "", errors.Wrap(err, "getting report generations")
	}
	parts := make([]string, 0, len(gens))
	for _, g := range gens {
		s, _ := g.(string)
		if s == "" {
			s = "0"
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, "."), nil
}

func (c *reportCache) GetReport(ctx context.Context, month billing.YearMonth, today time.Time) (billing.Report, string, bool, error) {
	version, err := c.version(ctx, month)
	if err != nil {
		return billing.Report{}, "", false, err
	}

	data, err := c.raw.Get(ctx, c.withPrefix(reportKey(month, version, today))).Bytes()
	if err == goredis.Nil {
		return billing.Report{}, version, false, nil
	} else if err != nil {
		return billing.Report{}, "", false, errors.Wrap(err, "getting report")
	}

	var report billing.Report
	if err = json.Unmarshal(data, &report); err != nil {
		return billing.Report{}, "", false, errors.Wrap(err, "unmarshalling report")
	}
	return report, version, true, nil
}

func (c *reportCache) SetReport(ctx context.Context, report billing.Report, version string) error {
	data, err := json.Marshal(report)
	if err != nil {
		return errors.Wrap(err, "marshalling report")
	}

	key := c.withPrefix(reportKey(report.Month, version, report.Today))
	_, err = c.raw.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, key, data, c.ttl)
		pipe.SAdd(ctx, c.withPrefix(monthKey(report.Month)), key)
		pipe.SAdd(ctx, c.withPrefix(monthsKey), report.Month.String())
		return nil
	})
	return errors.Wrap(err, "setting report")
}

func (c *reportCache) InvalidateMonth(ctx context.Context, month billing.YearMonth) error {
	if err := c.raw.Incr(ctx, c.withPrefix(monthGenKey(month))).Err(); err != nil {
		return errors.Wrap(err, "bumping month generation")
	}
	return c.deleteMonth(ctx, month)
}

func (c *reportCache) InvalidateAll(ctx context.Context) error {
	if err := c.raw.Incr(ctx, c.withPrefix(genKey)).Err(); err != nil {
		return errors.Wrap(err, "bumping generation")
	}

	months, err := c.raw.SMembers(ctx, c.withPrefix(monthsKey)).Result()
	if err != nil {
		return errors.Wrap(err, "listing cached months")
	}
	for _, m := range months {
		month, err := billing.ParseYearMonth(m)
		if err != nil {
			continue
		}
		if err = c.deleteMonth(ctx, month); err != nil {
			return err
		}
	}
	return errors.Wrap(c.raw.Del(ctx, c.withPrefix(monthsKey)).Err(), "deleting cached months")
}

// deleteMonth drops the cached entries of month. Readers already miss them once the generation moved.
func (c *reportCache) deleteMonth(ctx context.Context, month billing.YearMonth) error {
	set := c.withPrefix(monthKey(month))
	keys, err := c.raw.SMembers(ctx, set).Result()
	if err != nil {
		return errors.Wrap(err, "listing cached reports")
	}
	keys = append(keys, set)
	return errors.Wrap(c.raw.Del(ctx, keys...).Err(), "deleting cached reports")
}
