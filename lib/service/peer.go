// Copyright 2026 The Camdelegate Authors
// SPDX-License-Identifier: Apache-2.0

package service

import "context"

// Peer is the kernel-reported identity of the process on the other end
// of a Unix socket connection.
type Peer struct {
	PID int32
	UID uint32
	GID uint32
}

type peerKey struct{}

func withPeer(ctx context.Context, peer Peer) context.Context {
	return context.WithValue(ctx, peerKey{}, peer)
}

// PeerFromContext returns the connecting peer recorded by a server
// with RecordPeers enabled.
func PeerFromContext(ctx context.Context) (Peer, bool) {
	peer, ok := ctx.Value(peerKey{}).(Peer)
	return peer, ok
}
