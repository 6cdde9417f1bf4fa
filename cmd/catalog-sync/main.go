// One-shot catalog sync for one business/outlet. Run as a cron job or by
// hand when the cache drifted from the POS.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/purchasing_backend/catalogsync"
	"bitbucket.org/mmdatafocus/purchasing_backend/config"
	"bitbucket.org/mmdatafocus/purchasing_backend/utils"
)

func main() {
	businessID := flag.String("business-id", "", "Required: business id")
	outletID := flag.Int("outlet-id", 0, "Required: outlet id")
	forceFull := flag.Bool("full", false, "Force a full re-pull instead of an incremental sync")
	flag.Parse()

	if strings.TrimSpace(*businessID) == "" {
		fmt.Fprintln(os.Stderr, "--business-id is required")
		os.Exit(1)
	}
	if *outletID <= 0 {
		fmt.Fprintln(os.Stderr, "--outlet-id is required")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	ctx := utils.SetBusinessIdInContext(context.Background(), strings.TrimSpace(*businessID))

	result, err := catalogsync.SyncProductCatalog(ctx, *outletID, *forceFull)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sync failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("synced %d items for outlet %d (cache version %d, full=%v, deactivated=%d)\n",
		result.ItemsSynced, result.OutletId, result.CacheVersion, result.FullSync, result.Deactivated)
}
