// Copyright (C) 2025 Sol Labs, Inc.
// See LICENSE for copying information.

package admission

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"strings"
)

// ClientKey derives the rate limiting key for a request, in priority order:
// authenticated user id, API key digest, first X-Forwarded-For address, then
// the socket peer address. IP forms are hashed so raw addresses are never
// kept in the bucket map.
func ClientKey(userID, apiKey, forwardedFor, remoteAddr string) string {
	if userID != "" {
		return "user:" + userID
	}

	if apiKey != "" {
		digest := sha256.Sum256([]byte(apiKey))
		return "apikey:" + hex.EncodeToString(digest[:])[:16]
	}

	if forwardedFor != "" {
		first, _, _ := strings.Cut(forwardedFor, ",")
		return "ip:" + hashAddr(strings.TrimSpace(first))
	}

	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	if host == "" {
		host = "unknown"
	}
	return "ip:" + hashAddr(host)
}

func hashAddr(addr string) string {
	digest := md5.Sum([]byte(addr))
	return hex.EncodeToString(digest[:])
}
