package heimdall

import (
	"fmt"
	"log/slog"

	"github.com/ikaru5/heimdall-controller/pkg/controller"
	"github.com/ikaru5/heimdall-controller/pkg/registry"
	"github.com/ikaru5/heimdall-controller/pkg/semver"
)

const systemLogPrefix = "heimdall:system"

// SystemController is the controller key of the built-in controller.
const SystemController = "HeimdallController"

// newSystemController builds the controller answering the backend's housekeeping messages.
func newSystemController(r *Router) *controller.Base {
	return controller.New(SystemController, registry.Names("csrf", "error", "version"), map[string]registry.HandlerFunc{
		"csrf":    r.handleCSRF,
		"error":   handleBackendError,
		"version": r.handleVersion,
	})
}

func (r *Router) handleCSRF(data *registry.ActionData) {
	token := data.Package.CSRFToken()
	if token == "" {
		if m, ok := data.Package.Payload().(map[string]any); ok {
			token, _ = m["csrfToken"].(string)
		}
	}
	if token == "" {
		slog.Warn(fmt.Sprintf("%s - CSRF message without token", systemLogPrefix))
		return
	}

	r.SetCSRFToken(token)
	slog.Debug(fmt.Sprintf("%s - CSRF token stored", systemLogPrefix))
	if r.cfg.AfterCSRF != nil {
		r.cfg.AfterCSRF()
	}
}

func handleBackendError(data *registry.ActionData) {
	slog.Error(fmt.Sprintf("%s - Backend failed to process package: %v", systemLogPrefix, data.Package.Payload()))
}

func (r *Router) handleVersion(data *registry.ActionData) {
	m, _ := data.Package.Payload().(map[string]any)
	version, _ := m["version"].(string)
	if version == "" {
		slog.Warn(fmt.Sprintf("%s - version message without version", systemLogPrefix))
		return
	}
	slog.Info(fmt.Sprintf("%s - backend announced version %s", systemLogPrefix, version))

	if err := semver.CheckCompatible(r.cfg.BackendVersion, version); err != nil {
		r.reportFailure(err)
	}
}
