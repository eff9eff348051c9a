package cmd

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/KaramelBytes/evinsights-cli/internal/ai"
	"github.com/KaramelBytes/evinsights-cli/internal/dataset"
)

// newService wires the listings service to the run's logger and metrics.
func newService() (*dataset.Service, error) {
	if err := requireConfig(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.DatasetPath) == "" {
		return nil, fmt.Errorf("no listings file: pass --data or set dataset_path")
	}
	cleaner := dataset.NewCleaner(dataset.EVSchema(),
		dataset.WithLogger(logger),
		dataset.WithRecorder(pipeline),
	)
	return dataset.NewService(cfg.DatasetPath,
		dataset.WithLoadOptions(dataset.DefaultLoadOptions()),
		dataset.WithCleaner(cleaner),
		dataset.WithServiceLogger(logger),
	), nil
}

// cleanedTable loads and cleans the configured listings file, timing both steps.
func cleanedTable() (*dataset.Service, *dataset.Table, error) {
	svc, err := newService()
	if err != nil {
		return nil, nil, err
	}
	done := pipeline.Time("load")
	_, err = svc.Load()
	done()
	if err != nil {
		return nil, nil, err
	}
	done = pipeline.Time("clean")
	t, err := svc.Clean()
	done()
	if err != nil {
		return nil, nil, err
	}
	return svc, t, nil
}

// providerConfig maps configuration onto the AI backend settings.
func providerConfig() ai.ProviderConfig {
	pc := ai.ProviderConfig{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		OllamaHost:  cfg.OllamaHost,
		HTTPTimeout: time.Duration(cfg.HTTPTimeoutSec) * time.Second,
		RetryMax:    cfg.RetryMaxAttempts,
		BaseDelay:   time.Duration(cfg.RetryBaseDelayMs) * time.Millisecond,
		MaxDelay:    time.Duration(cfg.RetryMaxDelayMs) * time.Millisecond,
	}
	// Local models are slower; honor the dedicated timeout when it is larger.
	if p, _ := ai.NormalizeProvider(cfg.ChatProvider); p == ai.ProviderOllama && cfg.OllamaTimeoutSec > cfg.HTTPTimeoutSec {
		pc.HTTPTimeout = time.Duration(cfg.OllamaTimeoutSec) * time.Second
	}
	return pc
}

// modelPath is where train saves and predict loads a model kind.
func modelPath(kind string) string {
	return filepath.Join(cfg.CacheDir, "models", kind+".json")
}

// parseAssignments turns repeated key=value flags into a map.
func parseAssignments(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --set %q (want column=value)", p)
		}
		out[k] = strings.TrimSpace(v)
	}
	return out, nil
}

func formatEuro(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	intPart, frac, _ := strings.Cut(s, ".")
	neg := strings.HasPrefix(intPart, "-")
	intPart = strings.TrimPrefix(intPart, "-")
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := "€" + b.String() + "." + frac
	if neg {
		out = "-" + out
	}
	return out
}
