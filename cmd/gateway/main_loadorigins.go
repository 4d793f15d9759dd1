// Copyright (c) 2012-2024 Eli Janssen
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/cactus/mlog"
)

// loadOrigins reads allowed CORS origins, one per line. Blank lines and
// lines starting with # are skipped.
func loadOrigins(fname string) ([]string, error) {
	// #nosec
	file, err := os.Open(fname)
	if err != nil {
		return nil, fmt.Errorf("could not open origins file: %w", err)
	}
	// #nosec
	defer file.Close()

	var origins []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		u, err := url.Parse(line)
		if err != nil || u.Scheme == "" || u.Host == "" {
			mlog.Printm("ignoring bad origin", mlog.Map{"origin": line})
			continue
		}
		origins = append(origins, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading origins file: %w", err)
	}

	if mlog.HasDebug() {
		mlog.Debugm("loaded origins", mlog.Map{"file": fname, "count": len(origins)})
	}
	return origins, nil
}
