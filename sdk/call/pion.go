package call

import (
	"fmt"

	"github.com/HassanDev-git/HK.Chat/pkg/wire"
	"github.com/pion/webrtc/v4"
)

// DefaultICEServers are the public STUN servers used when none are given.
var DefaultICEServers = []webrtc.ICEServer{{
	URLs: []string{
		"stun:stun.l.google.com:19302",
		"stun:stun1.l.google.com:19302",
		"stun:stun2.l.google.com:19302",
		"stun:stun3.l.google.com:19302",
		"stun:stun4.l.google.com:19302",
	},
}}

// PionFactory creates pion peer connections.
type PionFactory struct {
	api    *webrtc.API
	config webrtc.Configuration
}

var _ PeerFactory = (*PionFactory)(nil)

// NewPionFactory builds a factory with the default codecs. An empty
// iceServers uses DefaultICEServers.
func NewPionFactory(iceServers []webrtc.ICEServer) (*PionFactory, error) {
	if len(iceServers) == 0 {
		iceServers = DefaultICEServers
	}
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	return &PionFactory{
		api:    webrtc.NewAPI(webrtc.WithMediaEngine(m)),
		config: webrtc.Configuration{ICEServers: iceServers},
	}, nil
}

// NewPeer implements PeerFactory.
func (f *PionFactory) NewPeer(h PeerHandlers) (Peer, error) {
	pc, err := f.api.NewPeerConnection(f.config)
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil || h.OnCandidate == nil {
			return
		}
		h.OnCandidate(toJSONValue(c.ToJSON()))
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		if h.OnState == nil {
			return
		}
		if state, ok := peerState(s); ok {
			h.OnState(state)
		}
	})
	return &pionPeer{pc: pc}, nil
}

func peerState(s webrtc.PeerConnectionState) (PeerState, bool) {
	switch s {
	case webrtc.PeerConnectionStateConnecting:
		return PeerConnecting, true
	case webrtc.PeerConnectionStateConnected:
		return PeerConnected, true
	case webrtc.PeerConnectionStateDisconnected:
		return PeerDisconnected, true
	case webrtc.PeerConnectionStateFailed:
		return PeerFailed, true
	case webrtc.PeerConnectionStateClosed:
		return PeerClosed, true
	default:
		return "", false
	}
}

type pionPeer struct {
	pc *webrtc.PeerConnection
}

func (p *pionPeer) AddTrack(track webrtc.TrackLocal) error {
	_, err := p.pc.AddTrack(track)
	return err
}

func (p *pionPeer) CreateOffer() (any, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return nil, fmt.Errorf("create offer: %w", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return nil, fmt.Errorf("set local offer: %w", err)
	}
	return toJSONValue(offer), nil
}

func (p *pionPeer) CreateAnswer() (any, error) {
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return nil, fmt.Errorf("create answer: %w", err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return nil, fmt.Errorf("set local answer: %w", err)
	}
	return toJSONValue(answer), nil
}

func (p *pionPeer) SetRemoteDescription(desc any) error {
	var sd webrtc.SessionDescription
	if err := wire.Decode(desc, &sd); err != nil {
		return fmt.Errorf("decode session description: %w", err)
	}
	return p.pc.SetRemoteDescription(sd)
}

func (p *pionPeer) AddICECandidate(candidate any) error {
	var init webrtc.ICECandidateInit
	if err := wire.Decode(candidate, &init); err != nil {
		return fmt.Errorf("decode candidate: %w", err)
	}
	return p.pc.AddICECandidate(init)
}

func (p *pionPeer) Close() error {
	return p.pc.Close()
}

// toJSONValue converts a pion value to the map form used on the wire.
func toJSONValue(v any) any {
	var out map[string]any
	if err := wire.Decode(v, &out); err != nil {
		return v
	}
	return out
}
