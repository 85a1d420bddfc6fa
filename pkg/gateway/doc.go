// Package gateway implements the client-side access layer to the voting
// network: signed JSON request/response envelopes over a WebSocket or HTTP
// transport, correlation of concurrent in-flight requests, response
// authenticity verification, and a pool of redundant gateways with an
// automatic failover policy.
//
// The building blocks, leaves first:
//
//   - MessageBody / RequestEnvelope / ResponseEnvelope: the wire format.
//   - Transport: one logical connection to one remote endpoint
//     (WebsocketTransport, HTTPTransport).
//   - DVoteClient: wraps one Transport; capability gating, correlation IDs,
//     timeouts, request signing and response verification.
//   - Web3Client: wraps one JSON-RPC Ethereum provider; registry resolution,
//     contract attach/deploy.
//   - Gateway: pairs one DVoteClient with one Web3Client.
//   - Pool: an ordered set of Gateways with the rotate/refresh failover
//     state machine.
//
// Both Gateway and Pool implement the Client interface, so call sites can
// remain agnostic of whether requests go to a fixed node or a failover pool.
package gateway
