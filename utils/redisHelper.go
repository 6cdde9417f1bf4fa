package utils

import (
	"context"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/purchasing_backend/config"
)

func GetCacheLifespan() time.Duration {
	v := strings.TrimSpace(os.Getenv("REDIS_CACHE_TTL_SECONDS"))
	if v == "" {
		return time.Hour
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return time.Hour
	}
	return time.Duration(n) * time.Second
}

func GetTypeName[T any]() string {
	var v T
	t := reflect.TypeOf(v)
	if t == nil {
		return ""
	}
	return t.Name()
}

func StoreRedis[T any](obj any, id int) error {
	key := fmt.Sprintf("%s:%d", GetTypeName[T](), id)
	return config.SetRedisObject(key, obj, GetCacheLifespan())
}

func RetrieveRedis[T any](id int) (*T, error) {
	key := fmt.Sprintf("%s:%d", GetTypeName[T](), id)
	var result T
	exists, err := config.GetRedisObject(key, &result)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	return &result, nil
}

func RemoveRedisItem[T any](id int) error {
	key := fmt.Sprintf("%s:%d", GetTypeName[T](), id)
	return config.RemoveRedisKey(key)
}

// GetSequence returns the next per-tenant sequence number for T.
// Counters live in redis; sequence gaps are acceptable (order numbers only
// need to be unique, not dense).
func GetSequence[T any](ctx context.Context, businessId string) (int64, error) {
	key := fmt.Sprintf("seq:%s:%s", GetTypeName[T](), businessId)
	return config.GetRedisCounter(ctx, key)
}
