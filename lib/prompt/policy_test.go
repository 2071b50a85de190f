// Copyright 2026 The Camdelegate Authors
// SPDX-License-Identifier: Apache-2.0

package prompt

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hartmanng/camdelegate/lib/protocol"
)

const examplePolicy = `{
    // Grant the camera, ignore notifications.
    "default": "deny",
    "permissions": {
        "android.permission.CAMERA": "grant",
        "android.permission.POST_NOTIFICATIONS": "dismiss",
    },
}`

func TestParsePolicy(t *testing.T) {
	prompter, err := ParsePolicy([]byte(examplePolicy))
	if err != nil {
		t.Fatalf("ParsePolicy: %v", err)
	}

	tests := []struct {
		permission string
		want       Decision
	}{
		{protocol.PermissionCamera, Granted},
		{protocol.PermissionPostNotifications, Dismissed},
		{"android.permission.RECORD_AUDIO", Denied},
	}
	for _, test := range tests {
		got, err := prompter.Prompt(context.Background(), test.permission)
		if err != nil {
			t.Fatalf("Prompt(%s): %v", test.permission, err)
		}
		if got != test.want {
			t.Errorf("Prompt(%s) = %v, want %v", test.permission, got, test.want)
		}
	}
}

func TestParsePolicyRejectsUnknownAnswer(t *testing.T) {
	if _, err := ParsePolicy([]byte(`{"default": "maybe"}`)); err == nil {
		t.Error("accepted unknown default answer")
	}
	if _, err := ParsePolicy([]byte(`{"permissions": {"p": "later"}}`)); err == nil {
		t.Error("accepted unknown permission answer")
	}
	if _, err := ParsePolicy([]byte(`{"delay": "soon"}`)); err == nil {
		t.Error("accepted malformed delay")
	}
}

func TestReadPolicyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.jsonc")
	if err := os.WriteFile(path, []byte(examplePolicy), 0600); err != nil {
		t.Fatal(err)
	}
	prompter, err := ReadPolicyFile(path)
	if err != nil {
		t.Fatalf("ReadPolicyFile: %v", err)
	}
	if got, _ := prompter.Prompt(context.Background(), protocol.PermissionCamera); got != Granted {
		t.Errorf("camera = %v, want granted", got)
	}
}

func TestPolicyDelayHonoursCancellation(t *testing.T) {
	prompter, err := ParsePolicy([]byte(`{"default": "grant", "delay": "1h"}`))
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	decision, err := prompter.Prompt(ctx, protocol.PermissionCamera)
	if err == nil || decision != Dismissed {
		t.Errorf("Prompt = (%v, %v), want dismissed with error", decision, err)
	}
}
