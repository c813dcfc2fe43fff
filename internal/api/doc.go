// Package api serves craftd's HTTP routes.
//
// Routing is an exact match on method and path:
//
//	GET /, GET /index.html   static index snippet
//	GET /craft               example craft as JSON
//	GET /stats               host core counts as JSON
//
// Everything else is a 404 with an empty body, including known paths
// requested with another method. Each request gets an X-Request-Id, a
// server span and a Prometheus observation labelled by route.
package api
