// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package guard keeps chat data on the local machine.
//
// A Guard is built once at startup and owns every privacy interceptor:
//
//   - Gate: an http.RoundTripper that only lets requests reach allow-listed
//     hosts, the origin, loopback, private ranges and onion services.
//   - AuditLog: a bounded in-memory ring of every gate decision.
//   - Scrubber: clears key-value and session storage and deletes every
//     durable database that is not a model cache.
//   - ClipboardPolicy: restricts copy, cut, paste and selection to message
//     content and text inputs.
//   - MutationWatch: strips foreign active content from rendered markup.
//   - InspectionMonitor: collects weak anti-inspection signals.
//
// The guard is defence in depth. Surfaces it cannot reach are skipped and
// its failures never propagate, except for the request the gate rejects.
//
// Usage:
//
//	g := guard.New(cfg, guard.Surfaces{KeyValue: kv, Databases: dbs})
//	g.Install()
//	g.Start(ctx)
//	defer g.Close()
package guard
