package observability

import (
	"github.com/fairyhunter13/ai-release-gate/internal/config"
	"testing"
)

func TestSetupLogger_DevAndProd(t *testing.T) {
	lg := SetupLogger(config.Config{AppEnv: "dev"}, "gateway")
	if lg == nil {
		t.Fatalf("nil logger")
	}
	lg2 := SetupLogger(config.Config{AppEnv: "prod"}, "arbiter")
	if lg2 == nil {
		t.Fatalf("nil logger prod")
	}
}
