package main

const (
	consoleTarget = "CONSOLE_LOGS_TARGET"
	// the agent needs a moment to start before its first cycle, so the very
	// first window reaches back a little further than "now"
	startupGrace = 10

	maxContainerIDLength = 12
)

type container struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// runtimeContainer is what the discovery collaborator reports for a running
// container.
type runtimeContainer struct {
	ID     string
	Labels map[string]string
	Names  []string
}

type logEntry struct {
	ContainerID   string `json:"container_id"`
	ContainerName string `json:"container_name"`
	From          int64  `json:"from"`
	To            int64  `json:"to"`
	Log           string `json:"log"`
}

type logBatch struct {
	Machine string     `json:"machine"`
	Logs    []logEntry `json:"logs"`
}
