package txn

import "github.com/google/uuid"

// RequestID correlates one outbound request with its (possibly many)
// inbound responses on a transaction's multiplexed stream.
type RequestID [16]byte

func NewRequestID() RequestID {
	return RequestID(uuid.New())
}

func (id RequestID) String() string {
	return uuid.UUID(id).String()
}
