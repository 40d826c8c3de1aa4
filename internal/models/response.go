package models

// WebhookResponse is the JSON body returned to the telephony platform.
type WebhookResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the JSON error envelope for all endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse reports liveness plus the operational gauges callers care
// about.
type HealthResponse struct {
	OK           bool `json:"ok"`
	RealtimeDIDs int  `json:"realtime_dids"`
	QueueDepth   int  `json:"queue_depth"`
}

// RebuildResponse summarizes a completed mapping rebuild.
type RebuildResponse struct {
	Status         string `json:"status"`
	DIDCount       int    `json:"did_count"`
	PublisherCount int    `json:"publisher_count"`
}

// StatsResponse is the /debug/stats payload.
type StatsResponse struct {
	Status            string   `json:"status"`
	ProcessedCalls    int64    `json:"processed_calls"`
	QueueDepth        int      `json:"queue_depth"`
	QueueCapacity     int      `json:"queue_capacity"`
	RealtimeDIDs      int      `json:"realtime_dids"`
	CampaignFiltering []string `json:"campaign_filtering,omitempty"`
	TotalReceived     int64    `json:"total_received"`
	Queued            int64    `json:"queued"`
	Duplicates        int64    `json:"duplicates"`
	Invalid           int64    `json:"invalid"`
	Overloads         int64    `json:"overloads"`
	UptimeSec         int64    `json:"uptime_sec"`
}
