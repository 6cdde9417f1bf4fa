package models

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"bitbucket.org/mmdatafocus/purchasing_backend/utils"
	"github.com/google/uuid"
)

// nextOrderNumber builds "<prefix><seq>" from the per-tenant redis counter.
func nextOrderNumber[T any](ctx context.Context, businessId string, prefix string) (string, int64, error) {
	seqNo, err := utils.GetSequence[T](ctx, businessId)
	if err != nil {
		return "", 0, err
	}
	if seqNo == 0 {
		// Redis unavailable: fall back to a unique non-sequential number so
		// order creation never depends on the cache being up.
		return prefix + uuid.NewString()[:8], 0, nil
	}
	return prefix + fmt.Sprint(seqNo), seqNo, nil
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
