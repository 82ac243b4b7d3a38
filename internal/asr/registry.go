package asr

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
)

// ProviderConfig carries engine construction settings.
type ProviderConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger
}

type factory func(cfg ProviderConfig) (Engine, error)

var engines = map[string]factory{
	"speechmatics": func(cfg ProviderConfig) (Engine, error) {
		return NewSpeechmaticsEngine(cfg)
	},
}

// NewEngine creates an ASR engine by provider name, failing fast on
// unregistered names.
func NewEngine(provider string, cfg ProviderConfig) (Engine, error) {
	create, ok := engines[provider]
	if !ok {
		available := make([]string, 0, len(engines))
		for name := range engines {
			available = append(available, name)
		}
		sort.Strings(available)
		return nil, fmt.Errorf("unknown ASR provider: %q, available: %s",
			provider, strings.Join(available, ", "))
	}
	return create(cfg)
}
