// Package extraction walks a parsed Viking document tree, locates the
// channel-bearing subsections and turns them into unit-scaled channel
// records ready for persistence.
package extraction

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/jkarvon/vikinglab/internal/logging"
	"github.com/jkarvon/vikinglab/internal/vikingfile"
)

// Kind identifies which of the three channel-bearing section shapes a
// channel was extracted from.
type Kind string

const (
	KindAverage   Kind = "average"
	KindTrace     Kind = "trace"
	KindLongTrace Kind = "longtrace"
)

// reservedKinds maps the reserved sub-key of a section to the channel kind
// it carries.
var reservedKinds = map[string]Kind{
	"Store Data":     KindAverage,
	"Trace Data":     KindTrace,
	"LongTrace Data": KindLongTrace,
}

// Channel is one decoded signal trace. RawSamples are already scaled to
// microvolts. SweepIndex is set only for KindTrace.
type Channel struct {
	ChannelNumber        int
	Kind                 Kind
	SweepIndex           *int
	RawSamples           []float64
	SamplingFrequencyKhz float64
	SubsampledKhz        float64
	DurationMs           float64
	Algorithm            string
}

// dataKeyTemplates is the ordered list of key shapes probed for the raw
// sample payload, "%s" standing for the section's base data key and a
// trailing "<>" for a rate annotation with any value. Unit and rate
// annotated shapes come first: a more specific key must win over a generic
// one so an unrelated field is never picked up.
var dataKeyTemplates = []string{
	"%s(mV)<>",
	"%s(µV)<>",
	"%s(uV)<>",
	"%s(mV)",
	"%s(µV)",
	"%s(uV)",
	"%s",
}

// baseDataKeys names the expected data key per channel kind.
var baseDataKeys = map[Kind]string{
	KindAverage:   "Averaged Data",
	KindTrace:     "Averaged Data",
	KindLongTrace: "LongTrace Data",
}

// field name variants, probed in order, per metadata field
var (
	channelNumberKeys  = []string{"Channel Number", "Channel No"}
	samplingFreqKeys   = []string{"Sampling Frequency(kHz)", "Sampling Frequency"}
	subsampledKeys     = []string{"SubSampled Frequency(kHz)", "SubSampled(kHz)", "SubSampled Frequency"}
	sweepDurationKeys  = []string{"Sweep Duration(ms)", "Sweep Duration"}
	traceDurationKeys  = []string{"Trace Duration(ms)", "Trace Duration"}
	algorithmKeys      = []string{"Algorithm"}
	adcUnitKeyFragment = "adc unit"
)

func getLogger() *slog.Logger {
	if l := logging.ForService("extraction"); l != nil {
		return l
	}
	return slog.Default()
}

// Extract visits every section of the document and returns the channels it
// carries, in document order. Subsections sometimes omit an explicit channel
// number and inherit the previous one, that fallback is threaded through the
// walk as an accumulator so extraction stays free of shared state.
func Extract(doc *vikingfile.Document) []Channel {
	if doc == nil || doc.Root == nil {
		return nil
	}
	channels, _ := walk(doc.Root, "", 0)
	return channels
}

func walk(node *vikingfile.Node, pathSegment string, lastChannelNumber int) ([]Channel, int) {
	var out []Channel

	for _, key := range node.Keys() {
		child, ok := node.Section(key)
		if !ok {
			continue
		}

		if kind, reserved := reservedKinds[key]; reserved {
			var channel Channel
			channel, lastChannelNumber = extractChannel(child, node, kind, pathSegment, lastChannelNumber)
			out = append(out, channel)
			continue
		}

		var nested []Channel
		nested, lastChannelNumber = walk(child, key, lastChannelNumber)
		out = append(out, nested...)
	}

	return out, lastChannelNumber
}

// extractChannel decodes one channel-bearing section. A missing data key
// yields a channel with empty samples rather than skipping the section, the
// decision to keep or discard empty channels is left to the caller.
func extractChannel(section, parent *vikingfile.Node, kind Kind, pathSegment string, lastChannelNumber int) (Channel, int) {
	channel := Channel{Kind: kind}

	if number, ok := leafInt(section, channelNumberKeys...); ok {
		channel.ChannelNumber = number
		lastChannelNumber = number
	} else {
		channel.ChannelNumber = lastChannelNumber
	}

	if kind == KindTrace {
		if sweep, err := strconv.Atoi(pathSegment); err == nil {
			channel.SweepIndex = &sweep
		}
	}

	channel.SamplingFrequencyKhz, _ = leafFloat(section, samplingFreqKeys...)
	channel.SubsampledKhz, _ = leafFloat(section, subsampledKeys...)

	durationKeys := sweepDurationKeys
	if kind == KindLongTrace {
		durationKeys = traceDurationKeys
	}
	channel.DurationMs, _ = leafFloat(section, durationKeys...)

	if algorithm, ok := leafString(section, algorithmKeys...); ok {
		channel.Algorithm = algorithm
	}

	dataKey, ok := resolveDataKey(section, baseDataKeys[kind])
	if !ok {
		getLogger().Warn("channel section has no data key, emitting empty samples",
			"kind", string(kind),
			"channel_number", channel.ChannelNumber)
		return channel, lastChannelNumber
	}

	raw, _ := section.Leaf(dataKey)
	scale := scaleForKey(dataKey, section, parent)
	channel.RawSamples = ParseSamples(raw, scale)

	return channel, lastChannelNumber
}

// resolveDataKey probes the ordered template list against the section's
// keys, then falls back to a case-insensitive substring scan.
func resolveDataKey(section *vikingfile.Node, base string) (string, bool) {
	if base == "" {
		return "", false
	}

	for _, template := range dataKeyTemplates {
		pattern := fmt.Sprintf(template, base)
		for _, key := range section.Keys() {
			if matchesTemplate(key, pattern) {
				if _, isLeaf := section.Leaf(key); isLeaf {
					return key, true
				}
			}
		}
	}

	lowerBase := strings.ToLower(base)
	for _, key := range section.Keys() {
		if strings.Contains(strings.ToLower(key), lowerBase) {
			if _, isLeaf := section.Leaf(key); isLeaf {
				return key, true
			}
		}
	}

	return "", false
}

// matchesTemplate matches a key against an expanded template. A trailing
// "<>" stands for a rate annotation with any value.
func matchesTemplate(key, pattern string) bool {
	if prefix, hasRate := strings.CutSuffix(pattern, "<>"); hasRate {
		return strings.HasPrefix(key, prefix+"<") && strings.HasSuffix(key, ">")
	}
	return key == pattern
}

// scaleForKey derives the microvolt multiplier for a resolved data key. A
// unit token embedded in the key name wins, otherwise the section and then
// its parent are searched for an ADC unit field.
func scaleForKey(key string, section, parent *vikingfile.Node) float64 {
	switch {
	case strings.Contains(key, "µV") || strings.Contains(key, "uV"):
		return 1.0
	case strings.Contains(key, "mV"):
		return 1000.0
	}

	for _, node := range []*vikingfile.Node{section, parent} {
		if node == nil {
			continue
		}
		if name, value, ok := findADCUnit(node); ok {
			if strings.Contains(name, "mV") {
				return value * 1000.0
			}
			return value
		}
	}

	return 1.0
}

// findADCUnit scans a section for an "ADC unit" field and parses its value.
func findADCUnit(node *vikingfile.Node) (name string, value float64, ok bool) {
	for _, key := range node.Keys() {
		if !strings.Contains(strings.ToLower(key), adcUnitKeyFragment) {
			continue
		}
		raw, isLeaf := node.Leaf(key)
		if !isLeaf {
			continue
		}
		parsed, err := ParseLocaleFloat(raw)
		if err != nil {
			continue
		}
		return key, parsed, true
	}
	return "", 0, false
}

// leafFloat probes the given key variants on a section, exact match first,
// then a case-insensitive substring scan, parsing with locale tolerance.
func leafFloat(node *vikingfile.Node, keys ...string) (float64, bool) {
	raw, ok := leafString(node, keys...)
	if !ok {
		return 0, false
	}
	value, err := ParseLocaleFloat(raw)
	if err != nil {
		return 0, false
	}
	return value, true
}

func leafInt(node *vikingfile.Node, keys ...string) (int, bool) {
	value, ok := leafFloat(node, keys...)
	if !ok {
		return 0, false
	}
	return int(value), true
}

func leafString(node *vikingfile.Node, keys ...string) (string, bool) {
	for _, key := range keys {
		if raw, ok := node.Leaf(key); ok {
			return raw, true
		}
	}
	for _, key := range keys {
		lower := strings.ToLower(key)
		for _, candidate := range node.Keys() {
			if strings.Contains(strings.ToLower(candidate), lower) {
				if raw, ok := node.Leaf(candidate); ok {
					return raw, true
				}
			}
		}
	}
	return "", false
}
