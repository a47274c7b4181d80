// Package report renders a crawl snapshot for people and scripts.
package report

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"time"

	"golang.org/x/net/publicsuffix"
	"gopkg.in/yaml.v3"

	"github.com/masahif/seeker/internal/crawler"
)

// Output formats
const (
	FormatText = "text"
	FormatYAML = "yaml"
)

// Summary is the yaml document
type Summary struct {
	Scope     string         `yaml:"scope"`
	TakenAt   time.Time      `yaml:"taken_at"`
	Totals    Totals         `yaml:"totals"`
	Domains   []DomainGroup  `yaml:"domains"`
	Redirects []string       `yaml:"redirects"`
	Admitted  map[string]int `yaml:"admitted"`
}

// Totals are the headline counters of a run
type Totals struct {
	Found     int            `yaml:"found"`
	Searched  int            `yaml:"searched"`
	Frontier  int            `yaml:"frontier"`
	Redirects int            `yaml:"redirects"`
	Cycles    int            `yaml:"cycles"`
	Succeeded int            `yaml:"succeeded"`
	Failures  map[string]int `yaml:"failures,omitempty"`
	Duration  string         `yaml:"duration"`
}

// DomainGroup lists found hosts sharing one registrable domain
type DomainGroup struct {
	Registrable string   `yaml:"registrable"`
	Hosts       []string `yaml:"hosts"`
}

// Write renders snap to w in format
func Write(w io.Writer, snap *crawler.Snapshot, format string) error {
	switch format {
	case FormatText, "":
		return writeText(w, snap)
	case FormatYAML:
		return writeYAML(w, snap)
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

// writeText prints one found domain per line, sorted
func writeText(w io.Writer, snap *crawler.Snapshot) error {
	found := append([]string(nil), snap.Found...)
	sort.Strings(found)

	bw := bufio.NewWriter(w)
	for _, d := range found {
		if _, err := fmt.Fprintln(bw, d); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func writeYAML(w io.Writer, snap *crawler.Snapshot) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(Summarize(snap)); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return enc.Close()
}

// Summarize builds the yaml document for snap
func Summarize(snap *crawler.Snapshot) Summary {
	redirects := make([]string, len(snap.Redirects))
	for i, r := range snap.Redirects {
		redirects[i] = r.From.String() + " -> " + r.To.String()
	}

	admitted := snap.Counts
	if admitted == nil {
		admitted = map[string]int{}
	}

	return Summary{
		Scope:   snap.Scope,
		TakenAt: snap.TakenAt,
		Totals: Totals{
			Found:     len(snap.Found),
			Searched:  len(snap.Searched),
			Frontier:  len(snap.Frontier),
			Redirects: len(snap.Redirects),
			Cycles:    snap.Stats.Cycles,
			Succeeded: snap.Stats.Succeeded,
			Failures:  snap.Stats.Failures,
			Duration:  snap.Stats.Duration.Round(time.Millisecond).String(),
		},
		Domains:   GroupByRegistrable(snap.Found),
		Redirects: redirects,
		Admitted:  admitted,
	}
}

// GroupByRegistrable groups hosts by their public suffix plus one label
// (web.mit.edu and news.mit.edu under mit.edu). A host that has no
// registrable part, such as a bare suffix, forms its own group.
func GroupByRegistrable(hosts []string) []DomainGroup {
	groups := make(map[string][]string)
	for _, h := range hosts {
		key, err := publicsuffix.EffectiveTLDPlusOne(h)
		if err != nil {
			key = h
		}
		groups[key] = append(groups[key], h)
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]DomainGroup, 0, len(keys))
	for _, k := range keys {
		members := groups[k]
		sort.Strings(members)
		out = append(out, DomainGroup{Registrable: k, Hosts: members})
	}
	return out
}
