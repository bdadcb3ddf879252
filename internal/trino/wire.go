package trino

// QueryResults is the JSON body returned by POST /v1/statement and by every
// GET of a nextUri. Data cells are decoded with json.Number for numbers.
type QueryResults struct {
	ID               string         `json:"id"`
	InfoURI          string         `json:"infoUri,omitempty"`
	PartialCancelURI string         `json:"partialCancelUri,omitempty"`
	NextURI          string         `json:"nextUri,omitempty"`
	Columns          []Column       `json:"columns,omitempty"`
	Data             [][]any        `json:"data,omitempty"`
	Stats            StatementStats `json:"stats"`
	Error            *QueryError    `json:"error,omitempty"`
	Warnings         []Warning      `json:"warnings,omitempty"`
	UpdateType       string         `json:"updateType,omitempty"`
	UpdateCount      *int64         `json:"updateCount,omitempty"`
}

// Column describes one result column.
type Column struct {
	Name          string              `json:"name"`
	Type          string              `json:"type"`
	TypeSignature ClientTypeSignature `json:"typeSignature"`
}

// ClientTypeSignature carries the base type name; arguments are not decoded.
type ClientTypeSignature struct {
	RawType string `json:"rawType"`
}

// StatementStats is the subset of query statistics the client tracks.
type StatementStats struct {
	State             string `json:"state"`
	Queued            bool   `json:"queued"`
	Scheduled         bool   `json:"scheduled"`
	Nodes             int    `json:"nodes"`
	TotalSplits       int    `json:"totalSplits"`
	QueuedSplits      int    `json:"queuedSplits"`
	RunningSplits     int    `json:"runningSplits"`
	CompletedSplits   int    `json:"completedSplits"`
	ElapsedTimeMillis int64  `json:"elapsedTimeMillis"`
	ProcessedRows     int64  `json:"processedRows"`
	ProcessedBytes    int64  `json:"processedBytes"`
}

// QueryError is the failure reported by the engine.
type QueryError struct {
	Message   string `json:"message"`
	SQLState  string `json:"sqlState,omitempty"`
	ErrorCode int    `json:"errorCode"`
	ErrorName string `json:"errorName"`
	ErrorType string `json:"errorType"`
}

// Warning is a non-fatal engine warning.
type Warning struct {
	WarningCode struct {
		Code int    `json:"code"`
		Name string `json:"name"`
	} `json:"warningCode"`
	Message string `json:"message"`
}

// Page is one batch of rows from a single protocol response. Rows are
// positionally aligned with Columns.
type Page struct {
	Columns []Column
	Rows    [][]any
}

// Server-side query states as reported in stats.state.
const (
	serverStateQueued  = "QUEUED"
	serverStateWaiting = "WAITING_FOR_RESOURCES"
)

// Protocol headers.
const (
	HeaderUser        = "X-Trino-User"
	HeaderSource      = "X-Trino-Source"
	HeaderCatalog     = "X-Trino-Catalog"
	HeaderSchema      = "X-Trino-Schema"
	HeaderTimeZone    = "X-Trino-Time-Zone"
	HeaderLanguage    = "X-Trino-Language"
	HeaderClientTags  = "X-Trino-Client-Tags"
	HeaderSession     = "X-Trino-Session"
	HeaderTraceToken  = "X-Trino-Trace-Token"
	statementEndpoint = "/v1/statement"
)
