package gateway_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/dvotenet/dvote-go/pkg/gateway"
	"github.com/dvotenet/dvote-go/pkg/sign"
)

const testPrivKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

var allAPIs = []gateway.APICategory{
	gateway.APIFile, gateway.APIVote, gateway.APICensus, gateway.APIResults, gateway.APIInfo,
}

// fakeHandler produces the method-specific response fields and the ok flag
// for one request body.
type fakeHandler func(req gateway.MessageBody) (map[string]any, bool)

// fakeGateway is an in-process gateway node: it answers the /ping liveness
// probe, upgrades everything else to WebSocket, and replies to each request
// envelope with a signed response envelope.
type fakeGateway struct {
	t      *testing.T
	signer *sign.EthereumSigner
	srv    *httptest.Server

	mu       sync.Mutex
	handlers map[string]fakeHandler
	calls    map[string]int
	pingOK   bool
}

func newFakeGateway(t *testing.T) *fakeGateway {
	t.Helper()
	signer, err := sign.NewEthereumSigner(testPrivKeyHex)
	require.NoError(t, err)

	f := &fakeGateway{
		t:        t,
		signer:   signer,
		handlers: make(map[string]fakeHandler),
		calls:    make(map[string]int),
		pingOK:   true,
	}
	f.handlers[gateway.InfoMethod] = func(gateway.MessageBody) (map[string]any, bool) {
		apiList := make([]string, 0, len(allAPIs))
		for _, api := range allAPIs {
			apiList = append(apiList, api.String())
		}
		return map[string]any{"apiList": apiList, "health": 100}, true
	}

	f.srv = httptest.NewServer(http.HandlerFunc(f.serveHTTP))
	t.Cleanup(f.srv.Close)
	return f
}

// handle installs a handler for one method.
func (f *fakeGateway) handle(method string, h fakeHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[method] = h
}

// failPing makes the liveness probe answer 503 from now on.
func (f *fakeGateway) failPing() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pingOK = false
}

// callCount reports how many requests arrived for the method.
func (f *fakeGateway) callCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// wsURI returns the gateway's ws:// endpoint.
func (f *fakeGateway) wsURI() string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http")
}

// publicKeyHex returns the uncompressed signing key in hex form.
func (f *fakeGateway) publicKeyHex() string {
	return hexutil.Encode(f.signer.PublicKey().Bytes())
}

// endpoint returns a verified EndpointInfo advertising every API.
func (f *fakeGateway) endpoint() gateway.EndpointInfo {
	return gateway.EndpointInfo{
		URI:           f.wsURI(),
		SupportedAPIs: allAPIs,
		PublicKey:     f.publicKeyHex(),
	}
}

func (f *fakeGateway) serveHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/ping" {
		f.mu.Lock()
		ok := f.pingOK
		f.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("pong"))
		return
	}

	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req gateway.RequestEnvelope
		if err := json.Unmarshal(data, &req); err != nil {
			continue
		}
		res := f.buildResponse(&req)
		if res == nil {
			continue
		}
		out, err := json.Marshal(res)
		if err != nil {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, out); err != nil {
			return
		}
	}
}

// buildResponse runs the method handler and signs the response body. A nil
// return means the request is dropped without any reply.
func (f *fakeGateway) buildResponse(req *gateway.RequestEnvelope) *gateway.ResponseEnvelope {
	method := req.Request.Method()

	f.mu.Lock()
	f.calls[method]++
	handler := f.handlers[method]
	f.mu.Unlock()

	if handler == nil {
		return nil
	}
	fields, ok := handler(req.Request)

	body := gateway.MessageBody{}
	for key, value := range fields {
		if err := body.Set(key, value); err != nil {
			return nil
		}
	}
	_ = body.Set("ok", ok)
	_ = body.Set("request", req.ID)

	signature, err := sign.SignJSON(f.signer, body)
	if err != nil {
		return nil
	}
	return &gateway.ResponseEnvelope{ID: req.ID, Response: body, Signature: signature}
}
