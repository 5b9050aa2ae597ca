package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/amenzel91/catalyst-bot/internal/domain"
)

// trackingParams are stripped from canonical URLs before hashing, along
// with any fragment, so that tracking-tagged and bare URLs collapse to
// the same content key.
var trackingParams = map[string]struct{}{
	"utm_source": {}, "utm_medium": {}, "utm_campaign": {}, "utm_term": {}, "utm_content": {},
	"ref": {}, "fbclid": {}, "gclid": {},
}

var nonWordRE = regexp.MustCompile(`[^\w\s]`)
var accessionRE = regexp.MustCompile(`accession_number=([0-9-]+)|/([0-9]{10}-?[0-9]{2}-?[0-9]{6})(?:[/\-]|$)`)

// Keys derives the (id_key, sig_key) pair for a NewsItem. For filings,
// the signature key is built from the official accession number when one
// can be extracted from the URL, so viewer/preview/archive links for the
// same filing collapse to one key regardless of path shape.
func Keys(item domain.NewsItem) domain.DedupKey {
	idKey := hash(item.Source + "|" + item.SourceID)

	var sigSource string
	if acc := extractAccession(item.URL); acc != "" {
		sigSource = "accession:" + acc
	} else {
		sigSource = canonicalURL(item.URL) + "|" + normalizeTitle(item.Title)
	}

	return domain.DedupKey{IDKey: idKey, SigKey: hash(sigSource), TitleNorm: normalizeTitle(item.Title)}
}

func extractAccession(rawURL string) string {
	m := accessionRE.FindStringSubmatch(rawURL)
	if m == nil {
		return ""
	}
	if m[1] != "" {
		return normalizeAccession(m[1])
	}
	return normalizeAccession(m[2])
}

func normalizeAccession(acc string) string {
	return strings.ReplaceAll(acc, "-", "")
}

// canonicalURL lowercases the host, strips the fragment and known
// tracking query parameters, and removes a trailing slash.
func canonicalURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return strings.ToLower(strings.TrimSuffix(raw, "/"))
	}
	u.Fragment = ""
	u.Host = strings.ToLower(u.Host)

	if u.RawQuery != "" {
		q := u.Query()
		for k := range q {
			if _, blocked := trackingParams[strings.ToLower(k)]; blocked {
				q.Del(k)
			}
		}
		u.RawQuery = q.Encode()
	}

	s := u.String()
	return strings.ToLower(strings.TrimSuffix(s, "/"))
}

// normalizeTitle lowercases, strips zero-width characters and
// punctuation, and collapses whitespace -- used only for hashing; the
// display copy of a title keeps its original form.
func normalizeTitle(title string) string {
	title = strings.Map(func(r rune) rune {
		switch r {
		case '​', '‌', '‍', '﻿':
			return -1
		}
		return r
	}, title)
	title = strings.ToLower(title)
	title = nonWordRE.ReplaceAllString(title, "")
	return strings.Join(strings.Fields(title), " ")
}

// JaccardSimilarity returns the token-set Jaccard similarity of two
// already-normalized strings, used to cross-check candidate cross-source
// matches against the 0.8 fuzzy-title threshold from spec.md §3.
func JaccardSimilarity(a, b string) float64 {
	ta := tokenSet(a)
	tb := tokenSet(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 1
	}
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	inter := 0
	for t := range ta {
		if _, ok := tb[t]; ok {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	return float64(inter) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	fields := strings.Fields(normalizeTitle(s))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// sortedTokens returns s's token set in sorted order, for tests that want
// a deterministic ordering when asserting on tokenization output.
func sortedTokens(s string) []string {
	set := tokenSet(s)
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
