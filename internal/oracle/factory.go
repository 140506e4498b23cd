package oracle

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/wesleyorama2/horde/internal/config"
)

// FromConfig builds the oracle selected by the run file. Provider API keys
// fall back to OPENAI_API_KEY and ANTHROPIC_API_KEY.
func FromConfig(cfg *config.OracleConfig, logger zerolog.Logger) (Oracle, error) {
	var c Completer
	switch cfg.Provider {
	case config.ProviderScript, "":
		return ScriptFromConfig(cfg.Script)
	case config.ProviderOpenAI:
		key := firstNonEmpty(cfg.APIKey, os.Getenv("OPENAI_API_KEY"))
		if key == "" {
			return nil, fmt.Errorf("openai oracle needs oracle.apiKey or OPENAI_API_KEY")
		}
		c = NewOpenAI(key, cfg.BaseURL, cfg.Model, cfg.MaxTokens, cfg.Temperature)
	case config.ProviderAnthropic:
		key := firstNonEmpty(cfg.APIKey, os.Getenv("ANTHROPIC_API_KEY"))
		if key == "" {
			return nil, fmt.Errorf("anthropic oracle needs oracle.apiKey or ANTHROPIC_API_KEY")
		}
		c = NewAnthropic(key, cfg.BaseURL, cfg.Model, cfg.MaxTokens, cfg.Temperature)
	default:
		return nil, fmt.Errorf("unknown oracle provider: %s", cfg.Provider)
	}

	c = NewThrottled(c, cfg.RequestsPerSecond, cfg.Burst)
	return NewLLM(c, WithLLMLogger(logger.With().Str("provider", cfg.Provider).Logger())), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
