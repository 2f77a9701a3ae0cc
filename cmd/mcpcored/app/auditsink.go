// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"

	"github.com/tool-mesh/mcpcore/pkg/logger"
)

// logSink is a catalog.AuditSink that writes each entry through the
// process logger. Operators wanting durable audit storage supply their
// own buffering/rotating catalog.AuditSink when embedding pkg/server
// directly; cmd/mcpcored's default
// keeps the reference binary dependency-free.
type logSink struct{}

// Write implements catalog.AuditSink.
func (logSink) Write(_ context.Context, entry []byte) error {
	logger.Infof("audit: %s", string(entry))
	return nil
}
