// Command craftd serves the craft demo routes on 127.0.0.1:3000.
//
// Prometheus metrics listen on 127.0.0.1:9090 unless --metrics-addr is
// empty. The gRPC health service, NATS events and stdout tracing are off
// until --grpc-addr, --nats-url and --trace are given. LOG_LEVEL (or a
// .env file setting it) picks the default log level.
package main
