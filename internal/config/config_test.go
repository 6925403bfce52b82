package config

import (
	"os"
	"testing"
)

func TestLoadAppliesDefaults(t *testing.T) {
	clearEnv(t)
	cfg := Load()

	if cfg.LBTimeoutMS != 500 {
		t.Errorf("got %d", cfg.LBTimeoutMS)
	}
	if cfg.BackendTimeoutMS != 10000 {
		t.Errorf("got %d", cfg.BackendTimeoutMS)
	}
	if cfg.CircuitFailureThreshold != 3 {
		t.Errorf("got %d", cfg.CircuitFailureThreshold)
	}
	if cfg.BillingRatePerMinute != 0.01 {
		t.Errorf("got %v", cfg.BillingRatePerMinute)
	}
	if cfg.DeregisterCriticalAfterS != 60 {
		t.Errorf("got %d", cfg.DeregisterCriticalAfterS)
	}
}

func TestLoadHonorsOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("LB_TIMEOUT_MS", "750")
	t.Setenv("BILLING_RATE_PER_MINUTE", "0.05")
	t.Setenv("EDGEMESH_ETCD_ENDPOINTS", "etcd-1:2379, etcd-2:2379")

	cfg := Load()
	if cfg.LBTimeoutMS != 750 {
		t.Errorf("got %d", cfg.LBTimeoutMS)
	}
	if cfg.BillingRatePerMinute != 0.05 {
		t.Errorf("got %v", cfg.BillingRatePerMinute)
	}
	if len(cfg.EtcdEndpoints) != 2 || cfg.EtcdEndpoints[0] != "etcd-1:2379" {
		t.Errorf("got %v", cfg.EtcdEndpoints)
	}
}

func TestDurationHelpersConvertUnits(t *testing.T) {
	clearEnv(t)
	cfg := Load()
	if cfg.LBTimeout().Milliseconds() != 500 {
		t.Errorf("got %v", cfg.LBTimeout())
	}
	if cfg.DeregisterCriticalAfter().Seconds() != 60 {
		t.Errorf("got %v", cfg.DeregisterCriticalAfter())
	}
}

func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"KAFKA_BOOTSTRAP_SERVERS", "KAFKA_CONSUMER_GROUP", "REGISTRY_URL", "LB_URL", "ORCHESTRATOR_URL",
		"LB_TIMEOUT_MS", "BACKEND_TIMEOUT_MS", "CIRCUIT_FAILURE_THRESHOLD", "CIRCUIT_RESET_TIMEOUT_S",
		"CACHE_DEFAULT_TTL_S", "BILLING_RATE_PER_MINUTE", "HEALTH_CHECK_INTERVAL_S",
		"DEREGISTER_CRITICAL_AFTER_S", "EDGEMESH_ETCD_ENDPOINTS", "EDGEMESH_ENV",
	}
	for _, k := range keys {
		orig, ok := os.LookupEnv(k)
		os.Unsetenv(k)
		if ok {
			t.Cleanup(func() { os.Setenv(k, orig) })
		}
	}
}
