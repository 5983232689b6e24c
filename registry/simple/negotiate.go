// Copyright (C) 2025 Sol Labs, Inc.
// See LICENSE for copying information.

// Package simple renders the repository protocol bodies defined by PEP 503
// and PEP 691, with the extensions from PEP 592, PEP 658/714 and PEP 740.
package simple

import (
	"sort"
	"strconv"
	"strings"

	"github.com/zeebo/errs"
)

var (
	// Error is the default error class for this package.
	Error = errs.Class("simple")

	// ErrNotAcceptable signals that an Accept header was present but none of
	// its entries match a supported format.
	ErrNotAcceptable = errs.Class("not acceptable")
)

// Media types understood by the negotiation.
const (
	MediaTypeJSON       = "application/vnd.pypi.simple.v1+json"
	MediaTypeHTML       = "application/vnd.pypi.simple.v1+html"
	MediaTypeLegacyHTML = "text/html"
)

// Format is a negotiated response format.
type Format int

const (
	// FormatHTML renders the PEP 503 HTML body.
	FormatHTML Format = iota
	// FormatJSON renders the PEP 691 JSON body.
	FormatJSON
)

// NegotiateFormat decides the response format for a request.
//
// An explicit format query parameter wins outright. Otherwise the Accept
// header is parsed into media ranges with quality values, sorted by quality,
// and matched against the supported media types. A missing Accept header
// defaults to HTML for backward compatibility; a present but unsatisfiable
// one fails with ErrNotAcceptable.
//
// The returned string is the Content-Type to serve the response with.
func NegotiateFormat(accept, formatParam string) (Format, string, error) {
	switch strings.ToLower(formatParam) {
	case "json":
		return FormatJSON, MediaTypeJSON, nil
	case "html":
		return FormatHTML, MediaTypeHTML, nil
	}

	if accept == "" {
		return FormatHTML, MediaTypeLegacyHTML, nil
	}

	for _, mediaType := range parseAccept(accept) {
		switch mediaType {
		case MediaTypeJSON:
			return FormatJSON, MediaTypeJSON, nil
		case MediaTypeHTML, MediaTypeLegacyHTML:
			return FormatHTML, MediaTypeHTML, nil
		}
	}

	return 0, "", ErrNotAcceptable.New("no supported media type in %q", accept)
}

// parseAccept returns the media types of an Accept header ordered by
// descending quality. Entries with quality zero or below are discarded and
// the default quality is 1.0.
func parseAccept(accept string) []string {
	type mediaRange struct {
		mediaType string
		quality   float64
	}

	var ranges []mediaRange
	for _, entry := range strings.Split(accept, ",") {
		parts := strings.Split(strings.TrimSpace(entry), ";")
		mediaType := strings.TrimSpace(parts[0])
		if mediaType == "" {
			continue
		}

		quality := 1.0
		for _, param := range parts[1:] {
			param = strings.TrimSpace(param)
			if value, ok := strings.CutPrefix(param, "q="); ok {
				parsed, err := strconv.ParseFloat(value, 64)
				if err != nil {
					parsed = 0
				}
				quality = parsed
			}
		}

		if quality > 0 {
			ranges = append(ranges, mediaRange{mediaType, quality})
		}
	}

	// stable sort keeps the header order for equal qualities
	sort.SliceStable(ranges, func(i, k int) bool {
		return ranges[i].quality > ranges[k].quality
	})

	mediaTypes := make([]string, len(ranges))
	for i, r := range ranges {
		mediaTypes[i] = r.mediaType
	}
	return mediaTypes
}
