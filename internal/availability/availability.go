// Package availability answers whether a requested model is ready on the
// local daemon and lists the installed models for display. Every operation
// returns a plain result value and never an error.
package availability

import (
	"context"
	"fmt"

	"ollamagate/internal/core"
)

// TagLister is the part of the gateway this package needs.
type TagLister interface {
	ListTags(ctx context.Context) (*core.TagList, error)
}

// Service resolves model availability against a TagLister.
type Service struct {
	tags   TagLister
	logger core.Logger
}

// NewService creates an availability service.
func NewService(tags TagLister, logger core.Logger) *Service {
	if logger == nil {
		logger = &core.NopLogger{}
	}
	return &Service{tags: tags, logger: logger}
}

// CheckModelAvailability reports whether modelName is installed on the local
// daemon. Providers other than the local one are always reported as running
// without contacting the daemon.
func (s *Service) CheckModelAvailability(ctx context.Context, modelName string, provider core.ProviderKind) core.AvailabilityResult {
	if !provider.IsLocal() {
		return core.AvailabilityResult{IsRunning: true}
	}

	if modelName == "" {
		return notRunning(core.ReasonNoModelSelected, core.MsgNoModelSelected)
	}

	tags, err := s.tags.ListTags(ctx)
	if err != nil {
		kind, ok := core.GatewayErrorKind(err)
		if ok && (kind == core.KindUnreachable || kind == core.KindUpstreamRejected) {
			return notRunning(core.ReasonServiceUnavailable, core.MsgServiceNotResponding)
		}
		s.logger.Error("Error checking Ollama model %s: %v", modelName, err)
		return notRunning(core.ReasonConnectionFailed, fmt.Sprintf(core.MsgConnectionFailedFmt, err.Error()))
	}

	if len(tags.Models) == 0 {
		return notRunning(core.ReasonNoModelsInstalled, fmt.Sprintf(core.MsgNoModelsInstalledFmt, modelName))
	}

	if !tags.Contains(modelName) {
		return notRunning(core.ReasonNotInstalled, fmt.Sprintf(core.MsgModelNotInstalledFmt, modelName, modelName))
	}

	return core.AvailabilityResult{IsRunning: true, ResolvedModelName: modelName}
}

// FetchRunningModels lists installed model names in daemon order.
func (s *Service) FetchRunningModels(ctx context.Context) core.ModelListResult {
	tags, err := s.tags.ListTags(ctx)
	if err != nil {
		kind, ok := core.GatewayErrorKind(err)
		if ok && (kind == core.KindUnreachable || kind == core.KindUpstreamRejected) {
			return core.ModelListResult{Models: []string{}, Error: core.MsgListModelsFailed}
		}
		s.logger.Error("Error fetching Ollama models: %v", err)
		return core.ModelListResult{Models: []string{}, Error: core.MsgListModelsNoConnect}
	}

	return core.ModelListResult{Models: tags.Names()}
}

func notRunning(reason core.AvailabilityReason, msg string) core.AvailabilityResult {
	return core.AvailabilityResult{IsRunning: false, Error: msg, Reason: reason}
}
