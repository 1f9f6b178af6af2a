package wordlist

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
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/x-stp/mksub/internal/core"
	"github.com/ygrebnov/errorc"
)

// maxLineSize bounds a single input line. Wordlists in the wild occasionally
// carry very long junk lines.
const maxLineSize = 1024 * 1024

// NormalizeWord lowercases w and strips surrounding whitespace and dots.
// The result may be empty, in which case the word is dropped.
func NormalizeWord(w string) string {
	w = strings.ToLower(strings.TrimSpace(w))
	return strings.Trim(w, ".")
}

// NormalizeDomain standardizes a base domain the same way: surrounding
// whitespace and dots removed, lowercased. Inner structure is left alone,
// so wildcard labels, ports and punycode pass through unchanged.
func NormalizeDomain(domain string) string {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return ""
	}
	domain = strings.ToLower(domain)
	for strings.HasPrefix(domain, ".") {
		domain = domain[1:]
	}
	for strings.HasSuffix(domain, ".") {
		domain = domain[:len(domain)-1]
	}
	return domain
}

// ReadWords reads one word per line, normalizes it, drops empties and
// duplicates (first occurrence wins, order preserved). A non-nil filter drops
// words that do not match; the generator also accepts the filter directly.
func ReadWords(r io.Reader, filter core.Filter) ([]string, error) {
	seen := make(map[string]struct{})
	var words []string
	err := scanLines(r, func(line string) {
		w := NormalizeWord(line)
		if w == "" {
			return
		}
		if filter != nil && !filter(w) {
			return
		}
		if _, dup := seen[w]; dup {
			return
		}
		seen[w] = struct{}{}
		words = append(words, w)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read wordlist: %w", err)
	}
	return words, nil
}

// ReadWordFile opens path and reads it with ReadWords.
func ReadWordFile(path string, filter core.Filter) ([]string, error) {
	if path == "" {
		return nil, errorc.With(core.ErrConfiguration, errorc.String("wordlist", "no wordlist given"))
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open wordlist %s: %w", core.ErrConfiguration, path, err)
	}
	defer f.Close()
	return ReadWords(f, filter)
}

// ReadDomains collects base domains from a single domain argument and a
// domain file, in that order. When neither yields anything, stdin is read
// instead; pass a nil stdin when it is an interactive terminal. Domains are
// normalized and deduplicated.
func ReadDomains(single, file string, stdin io.Reader) ([]string, error) {
	seen := make(map[string]struct{})
	var domains []string
	add := func(line string) {
		d := NormalizeDomain(line)
		if d == "" {
			return
		}
		if _, dup := seen[d]; dup {
			return
		}
		seen[d] = struct{}{}
		domains = append(domains, d)
	}

	add(single)

	if file != "" {
		f, err := os.Open(file)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to open domain file %s: %w", core.ErrConfiguration, file, err)
		}
		err = scanLines(f, add)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read domain file %s: %w", file, err)
		}
	}

	if len(domains) == 0 && stdin != nil {
		if err := scanLines(stdin, add); err != nil {
			return nil, fmt.Errorf("failed to read domains from stdin: %w", err)
		}
	}

	if len(domains) == 0 {
		return nil, errorc.With(core.ErrConfiguration, errorc.String("domains", "no domains provided"))
	}
	return domains, nil
}

// CompileFilter compiles pattern into a word filter. The pattern matches
// anywhere in the word unless anchored. An empty pattern returns a nil filter.
func CompileFilter(pattern string, caseInsensitive bool) (core.Filter, error) {
	if pattern == "" {
		return nil, nil
	}
	expr := pattern
	if caseInsensitive {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to compile regex %q: %w", core.ErrFilter, pattern, err)
	}
	return re.MatchString, nil
}

func scanLines(r io.Reader, fn func(string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		fn(scanner.Text())
	}
	return scanner.Err()
}
