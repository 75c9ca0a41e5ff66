package link

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/edaniels/golog"
	"github.com/gorilla/websocket"
	"github.com/mastercactapus/apawinder/plc"
	"github.com/pkg/errors"
)

// ErrNotConnected is returned while the gateway websocket is down.
var ErrNotConnected = errors.New("gateway not connected")

// GatewayRequest is one JSON request sent to a tag gateway.
type GatewayRequest struct {
	ID    int64    `json:"id"`
	Op    string   `json:"op"`
	Tags  []string `json:"tags,omitempty"`
	Type  string   `json:"type,omitempty"`
	Value float64  `json:"value,omitempty"`
}

// GatewayResponse answers the request with the same ID.
type GatewayResponse struct {
	ID     int64     `json:"id"`
	Values []float64 `json:"values,omitempty"`
	Error  string    `json:"error,omitempty"`
}

type call struct {
	req  GatewayRequest
	resp chan GatewayResponse
}

// Gateway is a plc.Driver for an EtherNet/IP tag gateway reached over a
// websocket. The connection is kept open in the background and redialed
// whenever it drops.
type Gateway struct {
	url     string
	log     golog.Logger
	Timeout time.Duration

	outgoing chan *call
	closeCh  chan struct{}
	once     sync.Once

	mx      sync.Mutex
	pending map[int64]*call

	nextID    int64
	connected int32
}

var _ plc.Driver = &Gateway{}

// NewGateway starts connecting to url.
func NewGateway(url string, log golog.Logger) *Gateway {
	g := &Gateway{
		url:      url,
		log:      log,
		Timeout:  2 * time.Second,
		outgoing: make(chan *call),
		closeCh:  make(chan struct{}),
		pending:  make(map[int64]*call),
	}
	go g.loop()
	return g
}

// Close stops the reconnect loop.
func (g *Gateway) Close() error {
	g.once.Do(func() { close(g.closeCh) })
	return nil
}

// Connected reports whether the websocket is currently up.
func (g *Gateway) Connected() bool { return atomic.LoadInt32(&g.connected) == 1 }

func (g *Gateway) failPending(msg string) {
	g.mx.Lock()
	for id, c := range g.pending {
		c.resp <- GatewayResponse{ID: id, Error: msg}
		delete(g.pending, id)
	}
	g.mx.Unlock()
}

func (g *Gateway) readLoop(ws *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		var resp GatewayResponse
		err := ws.ReadJSON(&resp)
		if err != nil {
			g.log.Errorf("gateway read: %v", err)
			return
		}
		g.mx.Lock()
		c := g.pending[resp.ID]
		delete(g.pending, resp.ID)
		g.mx.Unlock()
		if c == nil {
			g.log.Debugf("gateway: stale response %d", resp.ID)
			continue
		}
		c.resp <- resp
	}
}

func (g *Gateway) loop() {
reconnect:
	for {
		select {
		case <-g.closeCh:
			return
		default:
		}

		g.log.Infof("connecting to %s", g.url)
		ws, _, err := websocket.DefaultDialer.Dial(g.url, nil)
		if err != nil {
			g.log.Errorf("gateway connect: %v", err)
			select {
			case <-time.After(3 * time.Second):
			case <-g.closeCh:
				return
			}
			continue
		}
		g.log.Infof("connected to %s", g.url)
		atomic.StoreInt32(&g.connected, 1)
		done := make(chan struct{})
		go g.readLoop(ws, done)

		for {
			select {
			case <-g.closeCh:
				atomic.StoreInt32(&g.connected, 0)
				ws.Close()
				g.failPending("closed")
				return
			case <-done:
				atomic.StoreInt32(&g.connected, 0)
				ws.Close()
				g.failPending("connection lost")
				continue reconnect
			case c := <-g.outgoing:
				g.mx.Lock()
				g.pending[c.req.ID] = c
				g.mx.Unlock()
				err = ws.WriteJSON(c.req)
				if err != nil {
					g.log.Errorf("gateway send: %v", err)
					atomic.StoreInt32(&g.connected, 0)
					ws.Close()
					<-done
					g.failPending("connection lost")
					continue reconnect
				}
			}
		}
	}
}

func (g *Gateway) do(req GatewayRequest) (GatewayResponse, error) {
	if !g.Connected() {
		return GatewayResponse{}, ErrNotConnected
	}
	req.ID = atomic.AddInt64(&g.nextID, 1)
	c := &call{req: req, resp: make(chan GatewayResponse, 1)}

	timeout := time.NewTimer(g.Timeout)
	defer timeout.Stop()
	select {
	case g.outgoing <- c:
	case <-timeout.C:
		return GatewayResponse{}, errors.Errorf("gateway %s: send timeout", req.Op)
	case <-g.closeCh:
		return GatewayResponse{}, ErrClosed
	}

	select {
	case resp := <-c.resp:
		if resp.Error != "" {
			return resp, RemoteError(resp.Error)
		}
		return resp, nil
	case <-timeout.C:
		g.mx.Lock()
		delete(g.pending, req.ID)
		g.mx.Unlock()
		return GatewayResponse{}, errors.Errorf("gateway %s: response timeout", req.Op)
	}
}

// Initialize checks that the gateway answers.
func (g *Gateway) Initialize() error {
	_, err := g.do(GatewayRequest{Op: "hello"})
	return err
}

// Read returns the current values of names.
func (g *Gateway) Read(names []string) ([]float64, error) {
	resp, err := g.do(GatewayRequest{Op: "read", Tags: names})
	if err != nil {
		return nil, err
	}
	if len(resp.Values) != len(names) {
		return nil, errors.Errorf("read %d tags, got %d values", len(names), len(resp.Values))
	}
	return resp.Values, nil
}

// Write sets a single tag.
func (g *Gateway) Write(name string, t plc.Type, value float64) error {
	_, err := g.do(GatewayRequest{Op: "write", Tags: []string{name}, Type: t.String(), Value: value})
	return err
}
