// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkhoard Contributors

package auth

// FlashType classifies a flash message for presentation.
type FlashType string

// Flash message types.
const (
	FlashSuccess FlashType = "success"
	FlashError   FlashType = "error"
	FlashInfo    FlashType = "info"
	FlashWarning FlashType = "warning"
)

// Flash is a one-shot message carried across a redirect inside session data.
type Flash struct {
	Type    FlashType `json:"type"`
	Message string    `json:"message"`
}
