package emotion

import (
	"fmt"
	"sort"
	"strings"
)

var engines = map[string]func(apiKey string) (Engine, error){
	"google-cloud-nl": func(apiKey string) (Engine, error) {
		return NewGoogleNLEngine(apiKey)
	},
}

// NewEngine creates an emotion engine by provider name, failing fast on
// unregistered names. An empty provider disables analysis (nil engine).
func NewEngine(provider, apiKey string) (Engine, error) {
	if provider == "" {
		return nil, nil
	}
	create, ok := engines[provider]
	if !ok {
		available := make([]string, 0, len(engines))
		for name := range engines {
			available = append(available, name)
		}
		sort.Strings(available)
		return nil, fmt.Errorf("unknown emotion provider: %q, available: %s",
			provider, strings.Join(available, ", "))
	}
	return create(apiKey)
}
