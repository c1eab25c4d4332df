// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-biosecure.
//
// go-biosecure is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package health

import (
	"context"

	"github.com/jeremyhahn/go-biosecure/pkg/restriction"
	"github.com/jeremyhahn/go-biosecure/pkg/storage"
)

// StatusReporter is satisfied by restriction.Detector and
// fingerprint.Service.
type StatusReporter interface {
	Status(ctx context.Context) restriction.Status
}

// StorageCheck reports the backend unhealthy when the credential slots
// cannot be listed.
func StorageCheck(backend storage.Backend) CheckFunc {
	return func(_ context.Context) CheckResult {
		if _, err := backend.List(storage.SlotPrefix); err != nil {
			return CheckResult{
				Name:    "storage",
				Status:  StatusUnhealthy,
				Message: "credential storage unreachable",
				Error:   err.Error(),
			}
		}
		return CheckResult{Name: "storage", Status: StatusHealthy, Message: "credential storage reachable"}
	}
}

// PlatformCheck reports degraded when the native capability is absent or
// restricted, since registrations then fall back to simulated credentials.
func PlatformCheck(reporter StatusReporter) CheckFunc {
	return func(ctx context.Context) CheckResult {
		status := reporter.Status(ctx)
		switch {
		case status.Restricted:
			return CheckResult{
				Name:    "platform",
				Status:  StatusDegraded,
				Message: "simulated credentials in use: " + status.Reason,
			}
		case !status.Available:
			return CheckResult{
				Name:    "platform",
				Status:  StatusDegraded,
				Message: "no platform authenticator, simulated credentials in use",
			}
		}
		return CheckResult{Name: "platform", Status: StatusHealthy, Message: "native platform credentials available"}
	}
}
