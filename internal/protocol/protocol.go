package protocol

// Direct exchanges fanning requests out to the bound subsystem queues. The
// routing key always equals the destination queue name.
const (
	ExchangeCommands = "commands"
	ExchangeData     = "data"
	ExchangeControl  = "control"
)

// Fixed queue names owned by the daemon itself.
const (
	// ControlQueue receives Connect/Release admission traffic.
	ControlQueue = "control_queue"
	// ServerQueue carries the daemon's built-in self-test commands.
	ServerQueue = "rpc_queue"
	// TelemetryQueue carries the daemon's built-in data methods.
	TelemetryQueue = "telemetry_data_queue"
)

// Subsystem routing names. Each enabled subsystem owns the pair of queues
// returned by CommandQueue and DataQueue for its name.
const (
	SubsystemMotion    = "motion"
	SubsystemDigitizer = "digitizer"
	SubsystemGPIO      = "gpio"
)

// TokenHeader is the message header carrying the session token issued at
// Connect time. Authorization compares this token, not the reply address.
const TokenHeader = "x-session-token"

// Control bodies, sent raw (not JSON) on the control exchange.
const (
	ControlConnect = "Connect"
	ControlRelease = "Release"
)

// Control replies, raw strings published to the caller's reply queue.
const (
	ReplyConnected        = "Connected"
	ReplyAlreadyConnected = "Already Connected"
	ReplyQueued           = "Queued"
	ReplyReleased         = "Released"
)

// Request-path status strings. On the wire they are JSON string literals.
const (
	StatusCommandExecuted = "Command executed"
	StatusUnknownCommand  = "Unknown command"
	StatusUnauthorized    = "Unauthorized Client"
)

// CommandQueue returns the mutating-operations queue for a subsystem.
func CommandQueue(subsystem string) string { return subsystem + "_queue" }

// DataQueue returns the read-only-operations queue for a subsystem.
func DataQueue(subsystem string) string { return subsystem + "_data" }
