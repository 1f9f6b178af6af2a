package util

/*
mksub — fast subdomain permutation generator in Go
Copyright (C) 2025  Pepijn van der Stap <rxtls@vanderstap.info>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU Affero General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU Affero General Public License for more details.

You should have received a copy of the GNU Affero General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

import (
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultExtension is appended to output paths that have none.
const DefaultExtension = ".txt"

// ShardFilename derives the deterministic file name of one output shard.
// A base without extension gets ".txt". With more than one shard the shard
// index is inserted before the extension ("out.txt" -> "out-0.txt"), keeping
// the directory. Compressed shards additionally end in ".gz".
func ShardFilename(base string, shard, total int, compressed bool) string {
	dir, file := filepath.Split(base)
	ext := filepath.Ext(file)
	stem := strings.TrimSuffix(file, ext)
	if ext == "" {
		ext = DefaultExtension
	}

	name := stem
	if total > 1 {
		name += "-" + strconv.Itoa(shard)
	}
	name += ext
	if compressed && !strings.HasSuffix(name, ".gz") {
		name += ".gz"
	}
	return dir + name
}

// ShardFilenames returns the file names for every shard of an output base.
func ShardFilenames(base string, total int, compressed bool) []string {
	names := make([]string, total)
	for i := range names {
		names[i] = ShardFilename(base, i, total, compressed)
	}
	return names
}
