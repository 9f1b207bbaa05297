package transport

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// peer is one reliable connection. A single writer goroutine drains send,
// which preserves per-connection ordering.
type peer struct {
	id   string
	host string
	conn *websocket.Conn

	send chan []byte
	done chan struct{}
	// gone is closed once the peer is removed from its endpoint.
	gone chan struct{}
	once sync.Once

	owner *endpoint
}

func (p *peer) enqueue(data []byte) error {
	select {
	case <-p.done:
		return fmt.Errorf("%w: %s", ErrUnknownPeer, p.id)
	default:
	}
	select {
	case p.send <- data:
		return nil
	default:
		p.owner.logger.Warn("transport: send queue full, disconnecting peer", "peer", p.id)
		// Callers may be the only reader of the endpoint's events; closing
		// inline could block on emitting the close event.
		go p.close()
		return fmt.Errorf("%w: %s", ErrSendQueueFull, p.id)
	}
}

func (p *peer) writeLoop() {
	for {
		select {
		case data := <-p.send:
			if err := p.conn.SetWriteDeadline(time.Now().Add(p.owner.opts.WriteWait)); err != nil {
				p.fail(err)
				return
			}
			if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				p.fail(err)
				return
			}
		case <-p.done:
			return
		}
	}
}

func (p *peer) readLoop() {
	defer p.close()
	for {
		mt, data, err := p.conn.ReadMessage()
		if err != nil {
			if !isExpectedClose(err) {
				select {
				case <-p.done:
				default:
					p.owner.emit(Event{Type: EventError, Peer: p.id, Addr: p.host, Err: err})
				}
			}
			return
		}
		switch mt {
		case websocket.TextMessage:
			p.owner.emit(Event{Type: EventMessage, Peer: p.id, Addr: p.host, Data: data})
		case websocket.BinaryMessage:
			p.owner.emit(Event{Type: EventBinaryMessage, Peer: p.id, Addr: p.host, Data: data})
		}
	}
}

func (p *peer) fail(err error) {
	p.owner.logger.Warn("transport: write failed", "peer", p.id, "error", err)
	p.owner.emit(Event{Type: EventError, Peer: p.id, Addr: p.host, Err: err})
	p.close()
}

// close tears the connection down without flushing queued messages.
func (p *peer) close() {
	p.once.Do(func() {
		close(p.done)
		_ = p.conn.Close()
		p.owner.removePeer(p)
		close(p.gone)
	})
}

func isExpectedClose(err error) bool {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return true
	}
	return errors.Is(err, websocket.ErrCloseSent)
}
