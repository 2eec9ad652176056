package rtc

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/sryo/nombre-pendiente/internal/broker"
	"github.com/sryo/nombre-pendiente/internal/transport"
)

const handshakeTimeout = 20 * time.Second

type Transport struct {
	brokerURL string
	rtcConfig webrtc.Configuration
}

func New(brokerURL string, stunServers []string) *Transport {
	if len(stunServers) == 0 {
		stunServers = []string{"stun:stun.l.google.com:19302"}
	}
	return &Transport{
		brokerURL: brokerURL,
		rtcConfig: webrtc.Configuration{
			ICEServers: []webrtc.ICEServer{{URLs: stunServers}},
		},
	}
}

// Listen binds the identity at the broker and answers inbound offers. Each
// accepted offer becomes a peer connection whose data channel is delivered
// once open.
func (t *Transport) Listen(id transport.Identity) (transport.Listener, error) {
	sig, err := dialSignal(t.brokerURL, id)
	if err != nil {
		return nil, err
	}
	l := &rtcListener{
		tr:    t,
		sig:   sig,
		conns: make(chan transport.Conn, 8),
		peers: make(map[string]*webrtc.PeerConnection),
	}
	sig.start(l.handleEnvelope)
	log.Info().Str("module", "rtc").Str("id", string(id)).Msg("listening")
	return l, nil
}

type rtcListener struct {
	tr  *Transport
	sig *signalClient

	mu     sync.Mutex
	closed bool
	conns  chan transport.Conn
	peers  map[string]*webrtc.PeerConnection
}

func (l *rtcListener) Conns() <-chan transport.Conn { return l.conns }

func (l *rtcListener) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	peers := l.peers
	l.peers = map[string]*webrtc.PeerConnection{}
	close(l.conns)
	l.mu.Unlock()

	l.sig.close()
	for _, pc := range peers {
		_ = pc.Close()
	}
}

func (l *rtcListener) handleEnvelope(env broker.Envelope) {
	switch env.Type {
	case broker.TypeOffer:
		l.handleOffer(env)
	case broker.TypeCandidate:
		l.handleCandidate(env)
	case broker.TypeError:
		log.Warn().Str("module", "rtc").Str("error", env.Error).Msg("broker error")
	}
}

// handleOffer runs the non-trickle answer side: apply the remote offer,
// gather every local candidate, send one complete answer back.
func (l *rtcListener) handleOffer(env broker.Envelope) {
	var offer webrtc.SessionDescription
	if err := json.Unmarshal(env.Payload, &offer); err != nil {
		log.Warn().Err(err).Str("module", "rtc").Msg("bad offer payload")
		return
	}

	pc, err := webrtc.NewPeerConnection(l.tr.rtcConfig)
	if err != nil {
		log.Error().Err(err).Str("module", "rtc").Msg("answer peer connection")
		return
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		_ = pc.Close()
		return
	}
	l.peers[env.From] = pc
	l.mu.Unlock()

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		conn := newDCConn(pc, dc)
		dc.OnOpen(func() {
			l.mu.Lock()
			if l.closed {
				l.mu.Unlock()
				conn.Close()
				return
			}
			l.conns <- conn
			l.mu.Unlock()
			log.Info().Str("module", "rtc").Str("peer", env.From).Msg("guest channel open")
		})
	})

	if err := pc.SetRemoteDescription(offer); err != nil {
		log.Error().Err(err).Str("module", "rtc").Msg("set remote offer")
		_ = pc.Close()
		return
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		log.Error().Err(err).Str("module", "rtc").Msg("create answer")
		_ = pc.Close()
		return
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		log.Error().Err(err).Str("module", "rtc").Msg("set local answer")
		_ = pc.Close()
		return
	}
	<-gatherComplete

	payload, err := json.Marshal(pc.LocalDescription())
	if err != nil {
		_ = pc.Close()
		return
	}
	if err := l.sig.send(broker.Envelope{Type: broker.TypeAnswer, To: env.From, Payload: payload}); err != nil {
		log.Warn().Err(err).Str("module", "rtc").Msg("answer send")
	}
}

func (l *rtcListener) handleCandidate(env broker.Envelope) {
	l.mu.Lock()
	pc, ok := l.peers[env.From]
	l.mu.Unlock()
	if !ok {
		return
	}
	var cand webrtc.ICECandidateInit
	if err := json.Unmarshal(env.Payload, &cand); err != nil {
		return
	}
	if err := pc.AddICECandidate(cand); err != nil {
		log.Debug().Err(err).Str("module", "rtc").Msg("add candidate")
	}
}

// Dial opens a data channel to the identity's listener. The offer carries
// a complete candidate set, so the exchange is one offer and one answer;
// ErrPeerUnreachable surfaces when nothing is bound at the broker.
func (t *Transport) Dial(id transport.Identity) (transport.Conn, error) {
	sig, err := dialSignal(t.brokerURL, "")
	if err != nil {
		return nil, err
	}

	pc, err := webrtc.NewPeerConnection(t.rtcConfig)
	if err != nil {
		sig.close()
		return nil, fmt.Errorf("peer connection: %w", err)
	}
	dc, err := pc.CreateDataChannel("room", nil)
	if err != nil {
		sig.close()
		_ = pc.Close()
		return nil, fmt.Errorf("data channel: %w", err)
	}
	conn := newDCConn(pc, dc)

	answered := make(chan webrtc.SessionDescription, 1)
	unreachable := make(chan struct{}, 1)
	sig.start(func(env broker.Envelope) {
		switch {
		case env.Type == broker.TypeAnswer:
			var answer webrtc.SessionDescription
			if err := json.Unmarshal(env.Payload, &answer); err == nil {
				answered <- answer
			}
		case env.Type == broker.TypeError && env.Error == broker.ErrorPeerUnreachable:
			unreachable <- struct{}{}
		case env.Type == broker.TypeCandidate:
			var cand webrtc.ICECandidateInit
			if err := json.Unmarshal(env.Payload, &cand); err == nil {
				_ = pc.AddICECandidate(cand)
			}
		}
	})

	fail := func(err error) (transport.Conn, error) {
		sig.close()
		_ = pc.Close()
		return nil, err
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fail(fmt.Errorf("create offer: %w", err))
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		return fail(fmt.Errorf("set local offer: %w", err))
	}
	<-gatherComplete

	payload, err := json.Marshal(pc.LocalDescription())
	if err != nil {
		return fail(err)
	}
	if err := sig.send(broker.Envelope{Type: broker.TypeOffer, To: string(id), Payload: payload}); err != nil {
		return fail(fmt.Errorf("offer send: %w", err))
	}

	select {
	case answer := <-answered:
		if err := pc.SetRemoteDescription(answer); err != nil {
			return fail(fmt.Errorf("set remote answer: %w", err))
		}
	case <-unreachable:
		return fail(transport.ErrPeerUnreachable)
	case <-time.After(handshakeTimeout):
		return fail(transport.ErrPeerUnreachable)
	}

	opened := make(chan struct{})
	var openOnce sync.Once
	dc.OnOpen(func() { openOnce.Do(func() { close(opened) }) })
	if dc.ReadyState() == webrtc.DataChannelStateOpen {
		// Opened between the answer and the callback registration.
		openOnce.Do(func() { close(opened) })
	}
	select {
	case <-opened:
	case <-time.After(handshakeTimeout):
		return fail(transport.ErrPeerUnreachable)
	}

	// Signaling is done; the data channel carries everything from here.
	sig.close()
	log.Info().Str("module", "rtc").Str("peer", string(id)).Msg("host channel open")
	return conn, nil
}
