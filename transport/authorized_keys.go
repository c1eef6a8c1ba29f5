// Copyright (c) 2026, Ravenhammer Research.
//
// SPDX-License-Identifier: LGPL-2.1-only

package transport

import (
	"bufio"
	"fmt"
	"os"
	"os/user"

	"golang.org/x/crypto/ssh"
)

// AuthorizedUIDs parses an authorized_keys-style file (sshd(8) AUTHORIZED
// KEYS FILE FORMAT) and resolves each entry's comment field to a local uid
// via os/user.Lookup, producing the allowlist LocalListener.Accept checks a
// connecting peer's SO_PEERCRED uid against (spec §4.3 "peer credentials
// ... read before the first byte is processed"). Comments that don't name a
// real local user are skipped rather than treated as an error, since an
// authorized_keys file may carry entries for accounts that don't exist on
// this host. Reused from the original daemon's authorized-keys line parser
// (server/load_keys.go's loadKeysParseReader), repurposed here from
// provisioning a user's public keys to gating which uids may dial the
// socket at all.
func AuthorizedUIDs(path string) (map[string]bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("transport: opening authorized keys file %s: %w", path, err)
	}
	defer f.Close()

	allowed := make(map[string]bool)
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		b := scanner.Bytes()
		if len(b) == 0 || b[0] == '#' {
			continue
		}
		_, comment, _, _, err := ssh.ParseAuthorizedKey(b)
		if err != nil {
			return nil, fmt.Errorf("transport: %s line %d: %w", path, line, err)
		}
		u, err := user.Lookup(comment)
		if err != nil {
			continue
		}
		allowed[u.Uid] = true
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("transport: reading %s: %w", path, err)
	}
	return allowed, nil
}
