// Package server exposes the audit runner and the run store over HTTP, and
// streams run progress over a WebSocket.
package server

//go:generate swag init -g internal/server/server.go -o docs/swagger

// @title Netaudit API
// @version 0.1
// @description Runs the CORB and mixed-content audits against recorded page loads.
// @BasePath /
