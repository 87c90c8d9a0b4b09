package gossip

import (
	"crypto/ed25519"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cortexmesh/corenet/pkg/frame"
	"github.com/cortexmesh/corenet/pkg/sad"
)

// Defaults from spec.md §4.8.
const (
	DefaultActiveViewSize  = 5
	DefaultPassiveViewSize = 30
	DefaultARWL            = 6 // active random walk length
	DefaultPRWL            = 3 // passive random walk length
	DefaultShuffleLen      = 4
	DefaultShuffleInterval = 10 * time.Second
)

// Transport sends an encoded gossip message to a peer. The caller's Node
// never owns a socket directly; it hands encoded bytes to the transport
// the same way pkg/platform's Send/Recv decouples the frame codec from the
// backend.
type Transport interface {
	SendTo(peer frame.NodeID, msg []byte) error
}

// AdvertiseHandler is invoked when a node receives an Advertise message,
// letting the caller refresh its routing table.
type AdvertiseHandler func(origin frame.NodeID, caps sad.SAD)

// Node runs one peer's HyParView state machine.
type Node struct {
	mu sync.Mutex

	self      frame.NodeID
	active    *view
	passive   *view
	arwl      uint8
	prwl      uint8
	shuffleN  int
	transport Transport
	signer    ed25519.PrivateKey
	verifiers map[frame.NodeID]ed25519.PublicKey
	requireSig bool
	onAdvertise AdvertiseHandler
	log        logrus.FieldLogger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Config configures a new Node. Zero-valued fields fall back to the
// defaults above.
type Config struct {
	Self             frame.NodeID
	ActiveViewSize   int
	PassiveViewSize  int
	ARWL             uint8
	PRWL             uint8
	ShuffleLen       int
	Transport        Transport
	Signer           ed25519.PrivateKey
	RequireSignature bool
	OnAdvertise      AdvertiseHandler
	Logger           logrus.FieldLogger
}

// New builds a Node with the given configuration.
func New(cfg Config) *Node {
	activeSize := cfg.ActiveViewSize
	if activeSize == 0 {
		activeSize = DefaultActiveViewSize
	}
	passiveSize := cfg.PassiveViewSize
	if passiveSize == 0 {
		passiveSize = DefaultPassiveViewSize
	}
	arwl := cfg.ARWL
	if arwl == 0 {
		arwl = DefaultARWL
	}
	prwl := cfg.PRWL
	if prwl == 0 {
		prwl = DefaultPRWL
	}
	shuffleLen := cfg.ShuffleLen
	if shuffleLen == 0 {
		shuffleLen = DefaultShuffleLen
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Node{
		self:        cfg.Self,
		active:      newView(activeSize),
		passive:     newView(passiveSize),
		arwl:        arwl,
		prwl:        prwl,
		shuffleN:    shuffleLen,
		transport:   cfg.Transport,
		signer:      cfg.Signer,
		verifiers:   make(map[frame.NodeID]ed25519.PublicKey),
		requireSig:  cfg.RequireSignature,
		onAdvertise: cfg.OnAdvertise,
		log:         log,
		stopCh:      make(chan struct{}),
	}
}

// TrustPeer registers a peer's verification key, used when RequireSignature
// is set or whenever a signed message from that peer arrives.
func (n *Node) TrustPeer(id frame.NodeID, pub ed25519.PublicKey) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.verifiers[id] = pub
}

func (n *Node) send(to frame.NodeID, m Message) error {
	if n.transport == nil {
		return nil
	}
	return n.transport.SendTo(to, Encode(m, n.signer))
}

// ActiveView returns a snapshot of the current active view.
func (n *Node) ActiveView() []frame.NodeID {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.active.snapshot()
}

// PassiveView returns a snapshot of the current passive view.
func (n *Node) PassiveView() []frame.NodeID {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.passive.snapshot()
}

// Join initiates a join against a contact peer: sends it a Join message.
func (n *Node) Join(contact frame.NodeID) error {
	return n.send(contact, Message{Type: MsgJoin, SenderID: n.self, OriginID: n.self})
}

// Dispatch decodes buf and routes it to the matching handler. The
// verification key is looked up by the SenderID carried in the message
// header itself.
func (n *Node) Dispatch(buf []byte) error {
	n.mu.Lock()
	verifier, known := n.verifiers[messageSenderPeek(buf)]
	requireSig := n.requireSig
	n.mu.Unlock()

	var pub ed25519.PublicKey
	if known {
		pub = verifier
	}
	m, err := Decode(buf, requireSig, pub)
	if err != nil {
		n.log.WithError(err).Warn("gossip: dropping malformed or unauthenticated message")
		return err
	}
	n.log.WithFields(logrus.Fields{"type": m.Type, "sender": m.SenderID}).Debug("gossip: dispatching message")
	switch m.Type {
	case MsgJoin:
		return n.handleJoin(m)
	case MsgForwardJoin:
		return n.handleForwardJoin(m)
	case MsgDisconnect:
		return n.handleDisconnect(m)
	case MsgShuffle:
		return n.handleShuffle(m)
	case MsgShuffleReply:
		return n.handleShuffleReply(m)
	case MsgAdvertise:
		return n.handleAdvertise(m)
	default:
		return nil
	}
}

func messageSenderPeek(buf []byte) frame.NodeID {
	var id frame.NodeID
	if len(buf) >= 18 {
		copy(id[:], buf[2:18])
	}
	return id
}

func (n *Node) handleJoin(m Message) error {
	n.mu.Lock()
	var evicted frame.NodeID
	var evict bool
	if !n.active.add(m.SenderID) {
		evicted, evict = n.active.evictRandom()
		n.passive.add(evicted)
		n.active.add(m.SenderID)
	}
	others := n.active.snapshot()
	n.mu.Unlock()

	if evict {
		_ = n.send(evicted, Message{Type: MsgDisconnect, SenderID: n.self, OriginID: n.self})
	}
	fj := Message{Type: MsgForwardJoin, SenderID: n.self, OriginID: m.SenderID, TTL: n.arwl}
	for _, peer := range others {
		if peer == m.SenderID {
			continue
		}
		if err := n.send(peer, fj); err != nil {
			return err
		}
	}
	return nil
}

func (n *Node) handleForwardJoin(m Message) error {
	n.mu.Lock()
	nearlyEmpty := n.active.size() <= 1
	if m.TTL == 0 || nearlyEmpty {
		var evicted frame.NodeID
		var evict bool
		if !n.active.add(m.OriginID) {
			evicted, evict = n.active.evictRandom()
			n.passive.add(evicted)
			n.active.add(m.OriginID)
		}
		n.mu.Unlock()
		if evict {
			return n.send(evicted, Message{Type: MsgDisconnect, SenderID: n.self, OriginID: n.self})
		}
		return nil
	}
	if m.TTL == n.prwl {
		n.passive.add(m.OriginID)
	}
	next, ok := n.active.randomExcept(m.SenderID, m.OriginID)
	n.mu.Unlock()
	if !ok {
		return nil
	}
	return n.send(next, Message{Type: MsgForwardJoin, SenderID: n.self, OriginID: m.OriginID, TTL: m.TTL - 1})
}

func (n *Node) handleDisconnect(m Message) error {
	n.mu.Lock()
	n.active.remove(m.SenderID)
	promoted, ok := n.passive.evictRandom()
	if ok {
		n.active.add(promoted)
	}
	n.mu.Unlock()
	return nil
}

func (n *Node) handleShuffle(m Message) error {
	ids, err := DecodeNodeIDList(m.Payload)
	if err != nil {
		return err
	}
	n.mu.Lock()
	n.passive.merge(ids, n.self)
	replyIDs := n.passive.sample(n.shuffleN)
	n.mu.Unlock()

	reply := Message{Type: MsgShuffleReply, SenderID: n.self, OriginID: n.self, Payload: EncodeNodeIDList(replyIDs)}
	return n.send(m.SenderID, reply)
}

func (n *Node) handleShuffleReply(m Message) error {
	ids, err := DecodeNodeIDList(m.Payload)
	if err != nil {
		return err
	}
	n.mu.Lock()
	n.passive.merge(ids, n.self)
	n.mu.Unlock()
	return nil
}

func (n *Node) handleAdvertise(m Message) error {
	if n.onAdvertise != nil {
		if err := sad.Validate(m.Payload); err != nil {
			return err
		}
		s, err := sad.Decode(m.Payload)
		if err != nil {
			return err
		}
		n.onAdvertise(m.OriginID, s)
	}
	return nil
}

// ShuffleOnce sends one shuffle round to a randomly chosen active peer, as
// StartShuffleLoop does periodically.
func (n *Node) ShuffleOnce() error {
	n.mu.Lock()
	peer, ok := n.active.randomExcept()
	sampled := n.passive.sample(n.shuffleN)
	sampled = append(sampled, n.self)
	n.mu.Unlock()
	if !ok {
		return nil
	}
	return n.send(peer, Message{Type: MsgShuffle, SenderID: n.self, OriginID: n.self, Payload: EncodeNodeIDList(sampled)})
}

// Advertise broadcasts caps along the active view.
func (n *Node) Advertise(caps []byte) error {
	n.mu.Lock()
	peers := n.active.snapshot()
	n.mu.Unlock()
	msg := Message{Type: MsgAdvertise, SenderID: n.self, OriginID: n.self, Payload: caps}
	for _, p := range peers {
		if err := n.send(p, msg); err != nil {
			return err
		}
	}
	return nil
}

// StartShuffleLoop runs ShuffleOnce every interval until Stop is called.
func (n *Node) StartShuffleLoop(interval time.Duration) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-n.stopCh:
				return
			case <-ticker.C:
				_ = n.ShuffleOnce()
			}
		}
	}()
}

// Stop halts any background loop started on this node.
func (n *Node) Stop() {
	close(n.stopCh)
	n.wg.Wait()
}
