package bootstrap

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/the-alphabet-cartel/ash-nlp/internal/config"
	"github.com/the-alphabet-cartel/ash-nlp/internal/domain"
	"github.com/the-alphabet-cartel/ash-nlp/internal/engine"
	"github.com/the-alphabet-cartel/ash-nlp/internal/llmclient"
	"github.com/the-alphabet-cartel/ash-nlp/internal/logger"
	"github.com/the-alphabet-cartel/ash-nlp/internal/mlclient"
)

// BuildEnsemble constructs one classifier per configured model. Model set
// changes need a restart; only patterns, thresholds, and tunables reload.
func BuildEnsemble(cfg *config.Config, log logger.Logger) (*engine.Ensemble, error) {
	members := make([]engine.Member, 0, len(cfg.Models))
	for _, mc := range cfg.Models {
		classifier, err := buildClassifier(mc, cfg.Engine.ClassifierRPS)
		if err != nil {
			return nil, err
		}
		members = append(members, engine.Member{
			Classifier: classifier,
			Weight:     mc.Weight,
		})
		log.Info("classifier registered",
			logger.String("model_id", mc.ID),
			logger.String("kind", mc.Kind),
			logger.Float64("weight", mc.Weight))
	}
	return engine.NewEnsemble(members, log), nil
}

// probeClassifiers checks each HTTP sidecar once at startup. An unreachable
// backend is a warning, not a failure; the ensemble degrades at call time.
func probeClassifiers(cfg *config.Config, log logger.Logger) {
	for _, mc := range cfg.Models {
		if mc.Kind != "http" {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		version, err := mlclient.New(mc.ID, mc.URL).Health(ctx)
		cancel()
		if err != nil {
			log.Warn("classifier backend unreachable",
				logger.String("model_id", mc.ID),
				logger.Error(err))
			continue
		}
		log.Info("classifier backend healthy",
			logger.String("model_id", mc.ID),
			logger.String("model_version", version))
	}
}

func buildClassifier(mc config.ModelConfig, rps int) (engine.Classifier, error) {
	switch mc.Kind {
	case "http":
		if mc.URL == "" {
			return nil, fmt.Errorf("%w: model %s has no url", domain.ErrConfigurationInvalid, mc.ID)
		}
		return mlclient.New(mc.ID, mc.URL, mlclient.WithRateLimit(float64(rps))), nil
	case "anthropic":
		apiKey := os.Getenv(mc.APIKeyEnv)
		if apiKey == "" {
			return nil, fmt.Errorf("%w: model %s: env %s is empty", domain.ErrConfigurationInvalid, mc.ID, mc.APIKeyEnv)
		}
		return llmclient.New(mc.ID, mc.Model, apiKey), nil
	default:
		return nil, fmt.Errorf("%w: model %s has unknown kind %q", domain.ErrConfigurationInvalid, mc.ID, mc.Kind)
	}
}
