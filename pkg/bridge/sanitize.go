// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package bridge

import "regexp"

var (
	absPathPattern = regexp.MustCompile(`(?:^|[\s"'])(/[^\s"']+)`)
	ipv4Pattern    = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
)

// maxSanitizedMessageLength caps an error message's length before it
// reaches a client.
const maxSanitizedMessageLength = 200

// SanitizeMessage masks absolute filesystem paths and IPv4 addresses out
// of a tool-execution error message before it reaches the client, and caps
// its length.
func SanitizeMessage(msg string) string {
	msg = absPathPattern.ReplaceAllStringFunc(msg, func(match string) string {
		prefix := ""
		if len(match) > 0 && (match[0] == ' ' || match[0] == '"' || match[0] == '\'') {
			prefix = string(match[0])
		}
		return prefix + "/***"
	})
	msg = ipv4Pattern.ReplaceAllString(msg, "*.*.*.*")
	if len(msg) > maxSanitizedMessageLength {
		msg = msg[:maxSanitizedMessageLength]
	}
	return msg
}
