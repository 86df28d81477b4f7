package metrics_test

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/thijsmie/pocketbase/pkg/config"
	"github.com/thijsmie/pocketbase/pkg/metrics"
)

func ExampleFromConfig() {
	cfg := metrics.FromConfig(config.MetricsConfig{Namespace: "watcher"})

	fmt.Println(cfg.Namespace, len(cfg.RequestBuckets))
	// Output: watcher 11
}

func ExampleNewPrometheusProvider() {
	reg := prometheus.NewRegistry()
	provider := metrics.NewPrometheusProvider(nil, reg)
	metrics.SetProvider(provider)
	defer metrics.SetProvider(nil)

	provider.RecordTokenRefresh(nil)
	provider.RecordTokenRefresh(errors.New("401"))
	provider.SetSubscriptions(3)

	n, _ := testutil.GatherAndCount(reg, "pocketbase_client_auth_token_refreshes_total")
	fmt.Println("refresh series:", n)
	// Output: refresh series: 2
}
