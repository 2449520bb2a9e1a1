package protocol

// Notification methods the agent child emits, translated by
// internal/events into the uniform AgentEvent stream.
const (
	NotifyAgentMessageDelta   = "item/agentMessage/delta"
	NotifyReasoningTextDelta  = "item/reasoning/textDelta"
	NotifyItemStarted         = "item/started"
	NotifyItemCompleted       = "item/completed"
	NotifyTurnStarted         = "turn/started"
	NotifyTurnCompleted       = "turn/completed"
)

// Item types carried in item/started and item/completed payloads.
const (
	ItemTypeCommandExecution = "commandExecution"
	ItemTypeFileChange       = "fileChange"
	ItemTypeMCPToolCall      = "mcpToolCall"
)

// AgentEvent kinds: the uniform stream type defines.
const (
	EventKindText      = "text"
	EventKindReasoning = "reasoning"
	EventKindToolStart = "tool_start"
	EventKindToolEnd   = "tool_end"
	EventKindActivity  = "activity"
	EventKindDone      = "done"
	EventKindError     = "error"
)
