// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package port_test

import (
	"encoding/binary"
	"testing"

	"code.hybscloud.com/shmipc/capro"
	"code.hybscloud.com/shmipc/chunk"
	"code.hybscloud.com/shmipc/mempool"
	"code.hybscloud.com/shmipc/port"
)

func writeU64(h *chunk.Header, v uint64) { binary.LittleEndian.PutUint64(h.UserPayload(), v) }
func readU64(h *chunk.Header) uint64     { return binary.LittleEndian.Uint64(h.UserPayload()) }

func testService() capro.ServiceDescription {
	return capro.ServiceDescription{Service: "svc", Instance: "inst", Event: "evt"}
}

// connect drives the CONNECT/ACK handshake between c and s directly, in
// place of roudi's PortManager: it polls each port's
// router half and feeds the resulting message to the other.
func connect(t *testing.T, c *port.Client, s *port.Server) {
	t.Helper()
	msg, ok := c.TryGetCaProMessage()
	if !ok || msg.Type != capro.Connect {
		t.Fatalf("client TryGetCaProMessage = %v, %v, want CONNECT", msg, ok)
	}
	reply := s.DispatchCaProMessage(msg, c.ResponseQueue())
	if reply.Type != capro.Ack {
		t.Fatalf("server reply = %v, want ACK", reply)
	}
	c.DispatchCaProMessage(reply, s.RequestQueue())
	if c.ConnectionState() != port.Connected {
		t.Fatalf("client state = %v, want Connected", c.ConnectionState())
	}
}

// Scenario E: client/server round trip (spec.md §8.E).
func TestClientServer_RoundTrip(t *testing.T) {
	m := mempool.NewManager([]mempool.Config{{ChunkSize: 128, NumChunks: 16}})
	svc := testService()

	srv := port.NewServer(1, svc, m, m, port.ServerOptions{
		OfferOnCreate: true, RequestQueueCapacity: 4, MaxClients: 4,
		MaxChunksHeld: 8, MaxChunksAllocatedInParallel: 8,
	})
	cli := port.NewClient(2, svc, m, m, port.ClientOptions{
		ResponseQueueCapacity: 4, MaxChunksHeld: 8, MaxChunksAllocatedInParallel: 8,
	})

	cli.Connect()
	connect(t, cli, srv)

	reqH, err := cli.TryAllocateRequest(8, 8)
	if err != nil {
		t.Fatalf("TryAllocateRequest: %v", err)
	}
	writeU64(reqH, 7)
	if err := cli.SendRequest(reqH); err != nil {
		t.Fatalf("SendRequest: %v", err)
	}

	gotReq, err := srv.TryGetRequest()
	if err != nil {
		t.Fatalf("TryGetRequest: %v", err)
	}
	if got := readU64(gotReq); got != 7 {
		t.Fatalf("request payload = %d, want 7", got)
	}

	respH, err := srv.TryAllocateResponse(8, 8, gotReq)
	if err != nil {
		t.Fatalf("TryAllocateResponse: %v", err)
	}
	writeU64(respH, 49)
	srv.ReleaseRequest(gotReq)

	if _, err := srv.SendResponse(respH, -1); err != nil {
		t.Fatalf("SendResponse: %v", err)
	}

	gotResp, err := cli.TryGetResponse()
	if err != nil {
		t.Fatalf("TryGetResponse: %v", err)
	}
	if got := readU64(gotResp); got != 49 {
		t.Fatalf("response payload = %d, want 49", got)
	}
	cli.ReleaseResponse(gotResp)

	// The response chunk is back in the pool; the request chunk stays held
	// as the client request sender's last-sent chunk.
	if got := m.Pools()[0].UsedChunks(); got != 1 {
		t.Fatalf("used chunks after full round trip = %d, want 1", got)
	}
}

// Scenario F: client disconnects before the server's response is sent;
// SendResponse must report ErrClientNotAvailable and release the response
// chunk rather than leaking it (spec.md §8.F).
func TestClientServer_ClientGoneBeforeResponse(t *testing.T) {
	m := mempool.NewManager([]mempool.Config{{ChunkSize: 128, NumChunks: 16}})
	svc := testService()

	srv := port.NewServer(1, svc, m, m, port.ServerOptions{
		OfferOnCreate: true, RequestQueueCapacity: 4, MaxClients: 4,
		MaxChunksHeld: 8, MaxChunksAllocatedInParallel: 8,
	})
	cli := port.NewClient(2, svc, m, m, port.ClientOptions{
		ResponseQueueCapacity: 4, MaxChunksHeld: 8, MaxChunksAllocatedInParallel: 8,
	})

	cli.Connect()
	connect(t, cli, srv)

	reqH, err := cli.TryAllocateRequest(8, 8)
	if err != nil {
		t.Fatalf("TryAllocateRequest: %v", err)
	}
	writeU64(reqH, 1)
	if err := cli.SendRequest(reqH); err != nil {
		t.Fatalf("SendRequest: %v", err)
	}

	gotReq, err := srv.TryGetRequest()
	if err != nil {
		t.Fatalf("TryGetRequest: %v", err)
	}

	// The client disconnects (or dies) before the server responds.
	cli.Disconnect()
	msg, ok := cli.TryGetCaProMessage()
	if !ok || msg.Type != capro.Disconnect {
		t.Fatalf("client TryGetCaProMessage = %v, %v, want DISCONNECT", msg, ok)
	}
	srv.DispatchCaProMessage(msg, nil)

	respH, err := srv.TryAllocateResponse(8, 8, gotReq)
	if err != nil {
		t.Fatalf("TryAllocateResponse: %v", err)
	}
	srv.ReleaseRequest(gotReq)

	usedBefore := m.Pools()[0].UsedChunks()
	if _, err := srv.SendResponse(respH, -1); err != port.ErrClientNotAvailable {
		t.Fatalf("SendResponse = %v, want ErrClientNotAvailable", err)
	}
	if got := m.Pools()[0].UsedChunks(); got != usedBefore-1 {
		t.Fatalf("used chunks after failed send = %d, want %d (response chunk released)", got, usedBefore-1)
	}
}
