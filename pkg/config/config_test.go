package config

import (
    "os"
    "path/filepath"
    "testing"
    "time"
)

func writeConfig(t *testing.T, body string) string {
    t.Helper()
    p := filepath.Join(t.TempDir(), "servient.yaml")
    if err := os.WriteFile(p, []byte(body), 0o644); err != nil { t.Fatalf("write: %v", err) }
    return p
}

func TestLoadFile(t *testing.T) {
    p := writeConfig(t, `
app_name: demo
log:
  level: debug
servient:
  event_queue_size: 4
  delivery_timeout: 250ms
  discovery_cache_ttl: 0s
  discovery_cache_max_bytes: 2048
bindings:
  - kind: MEM
    host: lab
    server: true
credentials:
  urn:dev:lamp:
    token: secret
`)
    cfg, err := Load(p)
    if err != nil { t.Fatalf("load: %v", err) }
    if cfg.AppName != "demo" || cfg.Log.Level != "debug" { t.Fatalf("cfg %+v", cfg) }
    if cfg.Servient.EventQueueSize != 4 || cfg.Servient.DeliveryTimeout != 250*time.Millisecond { t.Fatalf("servient %+v", cfg.Servient) }
    if cfg.Servient.DiscoveryCacheTTL != 0 { t.Fatalf("cache ttl %v", cfg.Servient.DiscoveryCacheTTL) }
    if cfg.Servient.DiscoveryCacheMaxBytes != 2048 { t.Fatalf("cache max bytes %d", cfg.Servient.DiscoveryCacheMaxBytes) }
    if cfg.Servient.DefaultContentType != "application/json" { t.Fatalf("default content type lost: %q", cfg.Servient.DefaultContentType) }
    if len(cfg.Bindings) != 1 || cfg.Bindings[0].Kind != "mem" || cfg.Bindings[0].Host != "lab" || cfg.Bindings[0].Client {
        t.Fatalf("bindings %+v", cfg.Bindings)
    }
    if cfg.Credentials["urn:dev:lamp"]["token"] != "secret" { t.Fatalf("credentials %+v", cfg.Credentials) }
}

func TestLoadEnvOverride(t *testing.T) {
    t.Setenv("SERVIENT_LOG_LEVEL", "warn")
    t.Setenv("SERVIENT_SERVIENT_DISCOVERY_CACHE_MAX_BYTES", "512")
    cfg, err := Load(writeConfig(t, "app_name: env\n"))
    if err != nil { t.Fatalf("load: %v", err) }
    if cfg.Log.Level != "warn" { t.Fatalf("level %q", cfg.Log.Level) }
    if cfg.Servient.DiscoveryCacheMaxBytes != 512 { t.Fatalf("cache max bytes %d", cfg.Servient.DiscoveryCacheMaxBytes) }
    if len(cfg.Bindings) != 1 || !cfg.Bindings[0].Server || !cfg.Bindings[0].Client { t.Fatalf("default bindings %+v", cfg.Bindings) }
}

func TestDefaultCacheLimit(t *testing.T) {
    cfg, err := Load(writeConfig(t, "app_name: plain\n"))
    if err != nil { t.Fatalf("load: %v", err) }
    if cfg.Servient.DiscoveryCacheMaxBytes != Default().Servient.DiscoveryCacheMaxBytes || cfg.Servient.DiscoveryCacheMaxBytes == 0 {
        t.Fatalf("cache max bytes %d", cfg.Servient.DiscoveryCacheMaxBytes)
    }
}

func TestValidate(t *testing.T) {
    cases := map[string]string{
        "level":     "log:\n  level: loud\n",
        "duplicate": "bindings:\n  - kind: mem\n  - kind: mem\n",
        "kind":      "bindings:\n  - host: x\n",
        "queue":     "servient:\n  event_queue_size: -1\n",
    }
    for name, body := range cases {
        if _, err := Load(writeConfig(t, body)); err == nil { t.Fatalf("%s: expected error", name) }
    }
}
