// Copyright 2026 The Camdelegate Authors
// SPDX-License-Identifier: Apache-2.0

package broker

import "github.com/hartmanng/camdelegate/lib/protocol"

// NotificationConsentLevel is the first platform level at which posting
// notifications needs runtime consent.
const NotificationConsentLevel = 33

// Policy is the ordered list of permissions a full chain requests.
type Policy struct {
	Permissions []string
}

// NegotiatePolicy resolves the sequencing policy once, from the
// platform level the client runs at. Newer platforms gate notifications
// behind a prompt, which is requested before the camera.
func NegotiatePolicy(platformLevel int) Policy {
	if platformLevel >= NotificationConsentLevel {
		return Policy{Permissions: []string{
			protocol.PermissionPostNotifications,
			protocol.PermissionCamera,
		}}
	}
	return Policy{Permissions: []string{protocol.PermissionCamera}}
}
