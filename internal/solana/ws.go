package solana

import "context"

// WSClient defines Solana WebSocket subscription interface.
type WSClient interface {
	// SubscribeProgram streams account changes for every account owned by a program.
	SubscribeProgram(ctx context.Context, filter ProgramFilter) (<-chan AccountNotification, error)

	// Close closes the WebSocket connection.
	Close() error
}

// ProgramFilter selects the program whose accounts are streamed.
type ProgramFilter struct {
	ProgramID string
}

// AccountNotification represents a programSubscribe message.
type AccountNotification struct {
	Pubkey  string
	Slot    int64
	Account AccountInfo
}
