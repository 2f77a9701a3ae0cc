// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Command mcpcored is the reference mcpcore server binary.
package main

import (
	"os"

	"github.com/tool-mesh/mcpcore/cmd/mcpcored/app"
	"github.com/tool-mesh/mcpcore/pkg/logger"
)

func main() {
	logger.Initialize()

	if err := app.NewRootCmd().Execute(); err != nil {
		logger.Errorf("Error executing command: %v", err)
		os.Exit(1)
	}
}
