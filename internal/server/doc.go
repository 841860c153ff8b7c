// Package server runs the bot's event dispatcher and its HTTP admin API.
// Dispatcher queues inbound events per user so each user's messages are
// handled in order without holding up other users; HTTPServer exposes health, session and statistics
// endpoints plus Prometheus metrics.
package server
