/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: inference.go
Description: Main entry point for traffic-derived structure inference. Bundles the host
dominance resolver, path classifier, variable association extractor and domain discovery
behind one Engine configured from the mirror configuration.
*/

package inference

import (
	"github.com/kleascm/akaylee-mirror/pkg/interfaces"
	"github.com/kleascm/akaylee-mirror/pkg/logging"
	"github.com/sirupsen/logrus"
)

// Engine groups the inference components used by rule synthesis
type Engine struct {
	Paths     *PathClassifier
	Variables *VariableExtractor
	logger    *logrus.Logger
}

// NewEngine returns an inference engine for the given configuration
func NewEngine(config *interfaces.MirrorConfig, logger *logrus.Logger) *Engine {
	if config == nil {
		config = interfaces.DefaultConfig()
	}
	return &Engine{
		Paths:     NewPathClassifier(config.Thresholds.SegmentMinLength, config.Thresholds.HexRun),
		Variables: NewVariableExtractor(config.Properties),
		logger:    logging.OrDiscard(logger),
	}
}

// DominantHost resolves the dominant host of observations, logging skipped URLs
func (e *Engine) DominantHost(observations []interfaces.Observation) (string, error) {
	host, skipped, err := ResolveDominantHost(observations)
	for _, s := range skipped {
		e.logger.WithError(s).Warn("Skipping observation with invalid URL")
	}
	return host, err
}
