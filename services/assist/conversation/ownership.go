// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package conversation

import (
	"errors"

	"github.com/troforte/assist/services/assist/apperr"
)

// ErrOwnership is wrapped by every ownership rejection.
var ErrOwnership = errors.New("record belongs to another device")

// Owned is a record bound to the device that created it.
type Owned interface {
	OwnerDeviceID() string
}

// Authorize reports whether deviceID may read or modify owner. The match
// is exact; no case folding.
func Authorize(owner Owned, deviceID string) error {
	if owner.OwnerDeviceID() != deviceID {
		return &apperr.Error{
			Kind:    apperr.KindOwnership,
			Message: "Chat does not belong to this device",
			Err:     ErrOwnership,
		}
	}
	return nil
}
