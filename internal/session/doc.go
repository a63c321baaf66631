// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkhoard Contributors

// Package session implements the request-scoped session store.
//
// A Manager resolves the inbound cookie into a Store before the handler
// runs. Handlers read and mutate the Store; the Manager's middleware writes
// the accumulated state back exactly once, when the response starts or when
// the handler returns, whichever comes first.
//
// Two backends implement the durable side: CookieBackend keeps the whole
// session in a signed cookie, RecordBackend keeps it in a server-side
// record keyed by the hash of an opaque token.
package session
