package websocket

import "time"

type MessageType string

const (
	MessageTypeScanProgress       MessageType = "scan_progress"
	MessageTypeExtractionProgress MessageType = "extraction_progress"
	MessageTypeInventoryChanged   MessageType = "inventory_changed"
	MessageTypeError              MessageType = "error"
)

type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

type ScanProgressEvent struct {
	BaseMessage
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

type ExtractionProgressEvent struct {
	BaseMessage
	BatchID string `json:"batch_id"`
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

type InventoryChangedEvent struct {
	BaseMessage
	Root   string `json:"root"`
	Reason string `json:"reason"`
}

type ErrorEvent struct {
	BaseMessage
	Error   string `json:"error"`
	Context string `json:"context,omitempty"`
}
