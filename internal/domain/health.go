package domain

// ============================================================
// Health & Metrics API Responses
// ============================================================

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded, unhealthy
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of an individual dependency.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	LatencyMs   int64  `json:"latencyMs"`
	LastChecked string `json:"lastChecked"`
}

// CoreMetrics is returned by GET /v1/metrics/core.
type CoreMetrics struct {
	MerchantUpdates      int64            `json:"merchantUpdates"`
	MerchantUpdateErrors int64            `json:"merchantUpdateErrors"`
	StatisticsComputed   map[string]int64 `json:"statisticsComputed"`
	EventsEmitted        map[string]int64 `json:"eventsEmitted"`
	StoreErrors          int64            `json:"storeErrors"`
	CategoryCacheHitRate float64          `json:"categoryCacheHitRate"`
}

// SuccessResponse wraps a successful response without a body entity.
type SuccessResponse struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}
