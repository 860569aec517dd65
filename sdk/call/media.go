package call

import (
	"context"
	"fmt"
	"sync"

	"github.com/HassanDev-git/HK.Chat/pkg/wire"
	"github.com/pion/webrtc/v4"
)

// MediaDevices opens local capture for a call.
type MediaDevices interface {
	Open(ctx context.Context, callType wire.CallType) (LocalStream, error)
}

// LocalStream is the local media of one call.
type LocalStream interface {
	Tracks() []webrtc.TrackLocal
	SetEnabled(kind TrackKind, enabled bool)
	Close() error
}

// PeerHandlers receive peer connection callbacks. They may be called from any
// goroutine.
type PeerHandlers struct {
	// OnCandidate receives each gathered local candidate as an
	// RTCIceCandidateInit JSON value.
	OnCandidate func(candidate any)
	OnState     func(state PeerState)
}

// PeerFactory creates peer connections.
type PeerFactory interface {
	NewPeer(handlers PeerHandlers) (Peer, error)
}

// Peer is one WebRTC peer connection. Session descriptions and candidates
// cross this boundary as decoded JSON values, the form they travel in over
// the relay.
type Peer interface {
	AddTrack(track webrtc.TrackLocal) error
	// CreateOffer creates an offer and sets it as the local description.
	CreateOffer() (any, error)
	// CreateAnswer creates an answer and sets it as the local description.
	CreateAnswer() (any, error)
	SetRemoteDescription(desc any) error
	AddICECandidate(candidate any) error
	Close() error
}

// StaticMedia opens streams of RTP tracks that the application feeds itself,
// for example from a file or a capture library.
type StaticMedia struct {
	// StreamID labels the tracks. Defaults to "hkchat".
	StreamID string
}

var _ MediaDevices = StaticMedia{}

// Open implements MediaDevices: an Opus track, plus a VP8 track for video
// calls.
func (m StaticMedia) Open(ctx context.Context, callType wire.CallType) (LocalStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	streamID := m.StreamID
	if streamID == "" {
		streamID = "hkchat"
	}

	audio, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio", streamID,
	)
	if err != nil {
		return nil, fmt.Errorf("audio track: %w", err)
	}
	s := &StaticStream{
		Audio:   audio,
		enabled: map[TrackKind]bool{TrackAudio: true},
	}
	if callType == wire.CallTypeVideo {
		video, err := webrtc.NewTrackLocalStaticRTP(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
			"video", streamID,
		)
		if err != nil {
			return nil, fmt.Errorf("video track: %w", err)
		}
		s.Video = video
		s.enabled[TrackVideo] = true
	}
	return s, nil
}

// StaticStream holds the tracks opened by StaticMedia. Writers should check
// Enabled before writing packets.
type StaticStream struct {
	Audio *webrtc.TrackLocalStaticRTP
	Video *webrtc.TrackLocalStaticRTP

	mu      sync.Mutex
	enabled map[TrackKind]bool
	closed  bool
}

// Tracks implements LocalStream.
func (s *StaticStream) Tracks() []webrtc.TrackLocal {
	tracks := []webrtc.TrackLocal{s.Audio}
	if s.Video != nil {
		tracks = append(tracks, s.Video)
	}
	return tracks
}

// SetEnabled implements LocalStream.
func (s *StaticStream) SetEnabled(kind TrackKind, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.enabled[kind]; ok {
		s.enabled[kind] = enabled
	}
}

// Enabled reports whether packets for kind should be sent.
func (s *StaticStream) Enabled(kind TrackKind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && s.enabled[kind]
}

// Close implements LocalStream.
func (s *StaticStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
