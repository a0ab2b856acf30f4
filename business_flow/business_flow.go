// Package businessflow contains the core business logic for pipeline transitions and journey scheduling.
package businessflow

// ContextKey types request-scoped context values shared with the handlers.
type ContextKey string

// RequestIDKey carries the inbound request's correlation ID.
const RequestIDKey ContextKey = "X-Request-ID"

// BlockReason identifies which entry precondition a blocked move failed
type BlockReason string

const (
	BlockReasonProposalRequired BlockReason = "ProposalRequired"
	BlockReasonMeetingRequired  BlockReason = "MeetingRequired"
)

// MoveDecision is the outcome of evaluating a stage's entry rule for a lead.
// A blocked decision carries the reason so the caller can prompt for the
// missing prerequisite and retry the move once satisfied.
type MoveDecision struct {
	Allowed bool
	Reason  BlockReason
	LeadID  uint
	StageID uint
}

// Allowed constructs an allowed decision
func Allowed(leadID, stageID uint) MoveDecision {
	return MoveDecision{Allowed: true, LeadID: leadID, StageID: stageID}
}

// Blocked constructs a blocked decision with its reason
func Blocked(leadID, stageID uint, reason BlockReason) MoveDecision {
	return MoveDecision{Allowed: false, Reason: reason, LeadID: leadID, StageID: stageID}
}

// ClientMetadata holds client-related information for request tracking
type ClientMetadata struct {
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`
	RequestID string `json:"request_id,omitempty"`
}

// NewClientMetadata creates a new ClientMetadata instance
func NewClientMetadata(ipAddress, userAgent string) *ClientMetadata {
	return &ClientMetadata{
		IPAddress: ipAddress,
		UserAgent: userAgent,
	}
}

// SetRequestID sets the request ID
func (cm *ClientMetadata) SetRequestID(requestID string) {
	cm.RequestID = requestID
}
