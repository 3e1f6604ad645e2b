package handler

import (
	"coedit/internal/app/collab"
	"coedit/internal/app/metrics"
	"coedit/internal/configs"
	"coedit/internal/pkg/limiter"
)

// AppDeps bundles the shared dependencies injected into the HTTP handlers.
type AppDeps struct {
	Manager *collab.Manager
	Config  *configs.AppConfig
	Metrics *metrics.Registry
	Guard   *limiter.AdmissionGuard
}
