package mesh

// SendFunc transmits a serialized frame. It is invoked synchronously inside
// the Tick call that produced the frame (spec §5). Returning an error
// marks the attempt failed; the engine re-attempts the same frame within
// that Tick until the broadcast schedule's retry bound is exhausted, then
// drops it.
//
// This decoupled callback shape avoids the engine importing any particular
// radio/transport/simulator package: the embedder supplies SendFunc,
// LogFunc, and MetricsFunc, and the engine calls them with no knowledge of
// what is on the other side.
type SendFunc func(userContext any, frame []byte) error

// LogLevel mirrors the severities an embedder's logger would distinguish.
// The engine never logs directly (spec §7): it only calls LogFunc.
type LogLevel uint8

const (
	LogDebug LogLevel = iota
	LogInfo
	LogWarn
	LogError
)

var logLevelNames = [4]string{"debug", "info", "warn", "error"}

// String returns the human-readable name of the log level.
func (l LogLevel) String() string {
	if int(l) < len(logLevelNames) {
		return logLevelNames[l]
	}
	return "unknown"
}

// LogFunc receives a severity and a preformatted message from the engine.
type LogFunc func(userContext any, level LogLevel, message string)

// ConnectivityMetrics is the snapshot handed to MetricsFunc at the end of
// every Tick of a running engine (spec §6).
type ConnectivityMetrics struct {
	State               NodeState
	CycleCount          uint64
	NeighborCount        int
	DirectConnections    int
	AverageRSSI          float64
	CrowdingFactor       float64
	PDSF                 uint32
	CandidacyScore       float64
	MessagesForwarded    uint64
	MessagesReceived     uint64
	QueueLen             int
	SeenCacheLen         int
}

// MetricsFunc receives a ConnectivityMetrics snapshot. Optional: nil is a
// valid configuration and simply disables the callback.
type MetricsFunc func(userContext any, metrics ConnectivityMetrics)
