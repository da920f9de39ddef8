package domain

import "time"

// Source tags where a chat answer's context came from.
type Source string

const (
	SourceLLM              Source = "LLM"
	SourceHybridCurrent    Source = "Hybrid (LLM + Current Crypto Data)"
	SourceHybridHistorical Source = "Hybrid (LLM + Historical Crypto Data)"
)

// ChatRequest is the inbound chat payload.
type ChatRequest struct {
	Query string `json:"query"`
}

// ChatResponse is the chat reply returned to clients.
type ChatResponse struct {
	Response string `json:"response"`
	Source   Source `json:"source"`
}

// ChatRecord is a completed chat exchange as persisted and published.
type ChatRecord struct {
	ID        string    `json:"id"`
	RequestID string    `json:"request_id,omitempty"`
	Query     string    `json:"query"`
	Prompt    string    `json:"prompt"`
	Response  string    `json:"response"`
	Source    Source    `json:"source"`
	AssetID   string    `json:"asset_id,omitempty"`
	LatencyMs int64     `json:"latency_ms"`
	CreatedAt time.Time `json:"created_at"`
}

// Bus channel and stream names for chat exchanges.
const (
	ChannelChat = "chat:exchanges"
	StreamChat  = "stream:chat:exchanges"
)
