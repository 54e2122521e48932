// Package api provides the HTTP REST API and WebSocket server for the
// climate-ip bridge.
//
// Routes:
//
//	GET  /api/v1/health                              bridge health (no auth)
//	GET  /api/v1/devices                             all device snapshots
//	GET  /api/v1/devices/{id}                        one device snapshot
//	POST /api/v1/devices/{id}/refresh                poll a device now
//	PUT  /api/v1/devices/{id}/properties/{name}      {"value": ...}
//	GET  /api/v1/devices/{id}/history?limit=N        recorded snapshots
//	GET  /api/v1/ws                                  live snapshot events
//	GET  /metrics                                    Prometheus (no auth)
//
// When security.jwt.secret is set every /api/v1 route except /health
// requires an HS256 bearer token; WebSocket clients may pass it as the
// access_token query parameter instead.
//
// The server follows the same lifecycle as the other components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
