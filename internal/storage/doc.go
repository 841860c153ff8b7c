// Package storage is the gateway to the remote record store.
// Records are submitted with POST /add/data and retrieved with GET /get/data
// by user identity or UTC time range. Audio travels base64 encoded and
// timestamps use microsecond UTC precision.
package storage
