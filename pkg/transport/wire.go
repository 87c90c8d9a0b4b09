package transport

import "github.com/cortexmesh/corenet/pkg/frame"

// BindSend returns a Config.Send function that enqueues frames on mx at
// the given priority, the usual way to connect a freshly built Connection
// to its Multiplexer.
func BindSend(mx *Multiplexer, priority uint8) func(frame.FrameType, uint32, []byte) error {
	return func(ft frame.FrameType, sid uint32, payload []byte) error {
		return mx.Enqueue(ft, sid, payload, priority)
	}
}
