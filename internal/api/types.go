package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Item describes a registry entry in a transport-friendly format.
type Item struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Status       string   `json:"status"`
	Source       string   `json:"source"`
	SourceRef    string   `json:"sourceRef,omitempty"`
	RemoteRef    string   `json:"remoteRef,omitempty"`
	Results      []Result `json:"results"`
	ErrorMessage string   `json:"errorMessage,omitempty"`
	CreatedAt    string   `json:"createdAt,omitempty"`
	UpdatedAt    string   `json:"updatedAt,omitempty"`
}

// Result is one processed output of an item.
type Result struct {
	Original string `json:"original,omitempty"`
	Preview  string `json:"preview"`
	Cropped  string `json:"cropped"`
}

// Notification is a transient per-item message.
type Notification struct {
	ID        string `json:"id"`
	Message   string `json:"message"`
	Type      string `json:"type"`
	CreatedAt string `json:"createdAt"`
	ExpiresAt string `json:"expiresAt"`
}

// QueueStats carries item counts per status.
type QueueStats struct {
	Total    int            `json:"total"`
	Idle     int            `json:"idle"`
	Active   int            `json:"active"`
	Cropped  int            `json:"cropped"`
	Failed   int            `json:"failed"`
	ByStatus map[string]int `json:"byStatus"`
}

// WorkflowStatus summarizes workflow execution state.
type WorkflowStatus struct {
	IsProcessing     bool       `json:"isProcessing"`
	HasStarted       bool       `json:"hasStarted"`
	Progress         int        `json:"progress"`
	Pending          int        `json:"pending"`
	InFlight         int        `json:"inFlight"`
	ConcurrencyLimit int        `json:"concurrencyLimit"`
	Producer         string     `json:"producer"`
	Stats            QueueStats `json:"stats"`
	LastError        string     `json:"lastError,omitempty"`
	LastItem         *Item      `json:"lastItem,omitempty"`
}

// BackendHealth reports scan backend reachability.
type BackendHealth struct {
	Checked   bool   `json:"checked"`
	Ready     bool   `json:"ready"`
	Detail    string `json:"detail,omitempty"`
	LatencyMS int64  `json:"latencyMs"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	LockFilePath string         `json:"lockFilePath,omitempty"`
	BackendURL   string         `json:"backendUrl"`
	Workflow     WorkflowStatus `json:"workflow"`
	Backend      BackendHealth  `json:"backend"`
}

// ItemListResponse wraps a collection of items.
type ItemListResponse struct {
	Items []Item `json:"items"`
}

// ItemResponse wraps a single item.
type ItemResponse struct {
	Item Item `json:"item"`
}

// NotificationListResponse wraps the visible notifications.
type NotificationListResponse struct {
	Notifications []Notification `json:"notifications"`
}

// ProcessResponse reports how many items a start request queued.
type ProcessResponse struct {
	Queued       int  `json:"queued"`
	IsProcessing bool `json:"isProcessing"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// IDsRequest is the body of batch retry and remove requests.
type IDsRequest struct {
	IDs []string `json:"ids"`
}
