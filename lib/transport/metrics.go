// Copyright (C) 2024 The Nekoshare Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package transport

import gometrics "github.com/rcrowley/go-metrics"

// Stats is a point-in-time snapshot of a connection's total byte and packet
// counters, read through Connection.Stats. No handler in this module answers
// a DebugPerformance packet with these values.
type Stats struct {
	BytesSent       int64
	BytesReceived   int64
	PacketsSent     int64
	PacketsReceived int64
}

// connMetrics wraps a handful of per-connection go-metrics counters. A
// fresh, unregistered set is created per connection rather than registered
// into gometrics.DefaultRegistry, since a connection's lifetime is shorter
// than the process and nothing here needs process-wide aggregation.
type connMetrics struct {
	bytesSent       gometrics.Counter
	bytesReceived   gometrics.Counter
	packetsSent     gometrics.Counter
	packetsReceived gometrics.Counter
}

func newConnMetrics() *connMetrics {
	return &connMetrics{
		bytesSent:       gometrics.NewCounter(),
		bytesReceived:   gometrics.NewCounter(),
		packetsSent:     gometrics.NewCounter(),
		packetsReceived: gometrics.NewCounter(),
	}
}

func (m *connMetrics) recordSent(n int) {
	m.bytesSent.Inc(int64(n))
	m.packetsSent.Inc(1)
}

func (m *connMetrics) recordReceived(n int) {
	m.bytesReceived.Inc(int64(n))
	m.packetsReceived.Inc(1)
}

func (m *connMetrics) snapshot() Stats {
	return Stats{
		BytesSent:       m.bytesSent.Count(),
		BytesReceived:   m.bytesReceived.Count(),
		PacketsSent:     m.packetsSent.Count(),
		PacketsReceived: m.packetsReceived.Count(),
	}
}
