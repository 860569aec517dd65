package wire

// CallType selects the media requested for a call.
type CallType string

const (
	CallTypeVoice CallType = "voice"
	CallTypeVideo CallType = "video"
)

// Valid reports whether t is a known call type.
func (t CallType) Valid() bool {
	return t == CallTypeVoice || t == CallTypeVideo
}

// CallInitiateRequest is sent by the caller.
type CallInitiateRequest struct {
	TargetUserID int64    `json:"targetUserId"`
	CallType     CallType `json:"callType"`
	// Offer is the caller's SDP session description ({type, sdp}).
	Offer any `json:"offer"`
}

// CallIncomingPayload is delivered to every handle of the callee.
type CallIncomingPayload struct {
	Caller   UserSummary `json:"caller"`
	CallType CallType    `json:"callType"`
	Offer    any         `json:"offer"`
}

// CallAcceptRequest is sent by the callee.
type CallAcceptRequest struct {
	CallerID int64 `json:"callerId"`
	// Answer is the callee's SDP session description.
	Answer any `json:"answer"`
}

// CallAcceptedPayload is delivered to the caller.
type CallAcceptedPayload struct {
	UserID int64 `json:"userId"`
	Answer any   `json:"answer"`
}

// CallRejectRequest is sent by the callee (explicitly or as busy).
type CallRejectRequest struct {
	CallerID int64 `json:"callerId"`
}

// CallEndRequest is sent by either party.
type CallEndRequest struct {
	TargetUserID int64 `json:"targetUserId"`
}

// CallPeerPayload identifies the remote party for call:rejected and
// call:ended.
type CallPeerPayload struct {
	UserID int64 `json:"userId"`
}

// CallICECandidateRequest is sent by either party for each local candidate.
type CallICECandidateRequest struct {
	TargetUserID int64 `json:"targetUserId"`
	// Candidate is an RTCIceCandidateInit object.
	Candidate any `json:"candidate"`
}

// CallICECandidatePayload is delivered to the other party.
type CallICECandidatePayload struct {
	Candidate any   `json:"candidate"`
	From      int64 `json:"from"`
}
