package messages

// Browser extension bridge message types
const (
	TypeExtensionCommand = "command"
	TypeExtensionResult  = "result"
	TypeExtensionStatus  = "status"
)

// ExtensionCommand is sent to the browser extension
type ExtensionCommand struct {
	Type      string                 `json:"type"`
	Command   string                 `json:"command"`
	Args      map[string]interface{} `json:"args,omitempty"`
	RequestID string                 `json:"request_id"`
}

// ExtensionStatus updates the extension popup
type ExtensionStatus struct {
	Type     string  `json:"type"`
	Label    string  `json:"label"`
	Progress float64 `json:"progress"`
	Active   bool    `json:"active"`
}

// ExtensionResult is the extension's answer to a command
type ExtensionResult struct {
	Type      string      `json:"type"`
	RequestID string      `json:"request_id"`
	Result    interface{} `json:"result,omitempty"`
	Error     string      `json:"error,omitempty"`
}
