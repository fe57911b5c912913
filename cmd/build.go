package cmd

import (
	"github.com/RyanBlaney/sonido-cough/classify"
	"github.com/RyanBlaney/sonido-cough/configs"
	"github.com/RyanBlaney/sonido-cough/features"
	"github.com/RyanBlaney/sonido-cough/logging"
	"github.com/RyanBlaney/sonido-cough/model"
	"github.com/RyanBlaney/sonido-cough/transcode"
)

func buildNormalizer(config *configs.Config) (*transcode.Normalizer, error) {
	decoder, err := transcode.NewDecoder(&config.Audio.DecoderConfig)
	if err != nil {
		return nil, classify.Wrap(classify.KindConfiguration, "cmd.build", "invalid decoder settings", err)
	}
	normalizer, err := transcode.NewNormalizer(decoder, config.Audio.TargetSampleRate, config.Audio.Duration)
	if err != nil {
		return nil, classify.Wrap(classify.KindConfiguration, "cmd.build", "invalid audio settings", err)
	}
	return normalizer, nil
}

func buildExtractor(config *configs.Config) (*features.Extractor, error) {
	extractor, err := features.NewExtractor(config.Features)
	if err != nil {
		return nil, classify.Wrap(classify.KindConfiguration, "cmd.build", "invalid feature settings", err)
	}
	return extractor, nil
}

// buildService loads the model artifacts and wires the pipeline. withSpool creates
// the upload directory.
func buildService(config *configs.Config, withSpool bool) (*classify.Service, error) {
	logger := logging.WithFields(logging.Fields{
		"component": "bootstrap",
	})

	normalizer, err := buildNormalizer(config)
	if err != nil {
		return nil, err
	}
	extractor, err := buildExtractor(config)
	if err != nil {
		return nil, err
	}

	scaler, err := model.LoadScaler(config.Model.ScalerPath)
	if err != nil {
		return nil, classify.Wrap(classify.KindConfiguration, "cmd.build", "failed to load scaler", err)
	}
	forest, err := model.LoadForest(config.Model.ForestPath)
	if err != nil {
		return nil, classify.Wrap(classify.KindConfiguration, "cmd.build", "failed to load forest", err)
	}
	logger.Info("Model loaded", logging.Fields{
		"scaler": config.Model.ScalerPath,
		"forest": config.Model.ForestPath,
		"trees":  len(forest.Trees),
	})

	var spool *classify.Spool
	if withSpool {
		spool, err = classify.NewSpool(config.Server.UploadDir)
		if err != nil {
			return nil, classify.Wrap(classify.KindConfiguration, "cmd.build", "failed to prepare upload directory", err)
		}
	}

	return classify.NewService(normalizer, extractor, scaler, forest, spool)
}
