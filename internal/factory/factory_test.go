package factory

import (
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/mikey/giveaway-engine/internal/adapters/source"
	"github.com/mikey/giveaway-engine/internal/config"
	"github.com/mikey/giveaway-engine/internal/utils"
)

func testConfig(t *testing.T, values map[string]any) *config.Config {
	t.Helper()
	cfg := config.NewFromViper(config.NewEmptyViper())
	for k, v := range values {
		cfg.Set(k, v)
	}
	return cfg
}

func TestStoreFactory(t *testing.T) {
	dir := t.TempDir()
	for _, typ := range []string{"memory", "sqlite"} {
		t.Run(typ, func(t *testing.T) {
			cfg := testConfig(t, map[string]any{
				"store.type":        typ,
				"store.sqlite_path": filepath.Join(dir, "nested", "giveaway.db"),
			})
			st, err := NewStoreFactory(cfg, zap.NewNop()).CreateStore()
			if err != nil {
				t.Fatalf("CreateStore: %v", err)
			}
			st.Close()
		})
	}

	cfg := testConfig(t, map[string]any{"store.type": "redis"})
	if _, err := NewStoreFactory(cfg, zap.NewNop()).CreateStore(); err == nil {
		t.Error("expected an error for an unknown store type")
	}
}

func TestSourceFactory_Dir(t *testing.T) {
	cfg := testConfig(t, map[string]any{"source.type": "dir", "source.dir.path": t.TempDir()})
	src, err := NewSourceFactory(cfg, zap.NewNop()).CreateSource()
	if err != nil {
		t.Fatalf("CreateSource: %v", err)
	}
	if _, ok := src.(*source.Dir); !ok {
		t.Errorf("source = %T", src)
	}
}

func TestClassifierFactory_RequiresCredentials(t *testing.T) {
	tp := utils.NewTextProcessor(zap.NewNop())
	for _, provider := range []string{"openai", "gemini", "unknown"} {
		cfg := testConfig(t, map[string]any{"classifier.provider": provider})
		if _, err := NewClassifierFactory(cfg, zap.NewNop(), tp).CreateClassifier(); err == nil {
			t.Errorf("%s: expected an error", provider)
		}
	}

	cfg := testConfig(t, map[string]any{"classifier.provider": "http", "httpscore.url": "http://127.0.0.1:1/score"})
	backend, err := NewClassifierFactory(cfg, zap.NewNop(), tp).CreateClassifier()
	if err != nil {
		t.Fatalf("http provider: %v", err)
	}
	if NewClassifierFactory(cfg, zap.NewNop(), tp).CreateAdapter(backend) == nil {
		t.Error("nil adapter")
	}
}

func TestNotifyAndAuditFactories(t *testing.T) {
	cfg := testConfig(t, map[string]any{
		"notify.type": "log",
		"audit.type":  "file",
		"audit.path":  filepath.Join(t.TempDir(), "audit.jsonl"),
	})
	if _, err := NewNotifyFactory(cfg, zap.NewNop()).CreateNotifier(); err != nil {
		t.Errorf("CreateNotifier: %v", err)
	}
	sink, err := NewAuditFactory(cfg, zap.NewNop()).CreateAuditSink(nil)
	if err != nil {
		t.Fatalf("CreateAuditSink: %v", err)
	}
	sink.Close()

	cfg.Set("notify.type", "smtp")
	if _, err := NewNotifyFactory(cfg, zap.NewNop()).CreateNotifier(); err == nil {
		t.Error("smtp notifier without recipients should fail")
	}
}
