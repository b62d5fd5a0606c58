package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jkarvon/vikinglab/internal/vikingfile"
)

// parseDoc parses inline export text into a document tree.
func parseDoc(t *testing.T, content string) *vikingfile.Document {
	t.Helper()
	return vikingfile.Parse(content)
}

func TestExtract_TraceChannelWithSweepIndex(t *testing.T) {
	t.Parallel()

	doc := parseDoc(t, "[1.2 - Trace Data] Channel Number=3\n"+
		"Averaged Data(µV)<1920>=1,2,3\n")

	channels := Extract(doc)
	require.Len(t, channels, 1)

	ch := channels[0]
	assert.Equal(t, KindTrace, ch.Kind)
	assert.Equal(t, 3, ch.ChannelNumber)
	require.NotNil(t, ch.SweepIndex)
	assert.Equal(t, 2, *ch.SweepIndex)
	assert.Equal(t, []float64{1, 2, 3}, ch.RawSamples)
}

func TestExtract_AverageChannelMetadata(t *testing.T) {
	t.Parallel()

	doc := parseDoc(t, "[1 - Store Data]\n"+
		"Channel Number=1\n"+
		"Sampling Frequency(kHz)=48\n"+
		"SubSampled Frequency(kHz)=1,92\n"+
		"Sweep Duration(ms)=500\n"+
		"Algorithm=Average\n"+
		"Averaged Data(µV)<1920>=0.5,1.5\n")

	channels := Extract(doc)
	require.Len(t, channels, 1)

	ch := channels[0]
	assert.Equal(t, KindAverage, ch.Kind)
	assert.Nil(t, ch.SweepIndex, "sweep index belongs to trace channels only")
	assert.Equal(t, 1, ch.ChannelNumber)
	assert.InDelta(t, 48.0, ch.SamplingFrequencyKhz, 1e-9)
	assert.InDelta(t, 1.92, ch.SubsampledKhz, 1e-9)
	assert.InDelta(t, 500.0, ch.DurationMs, 1e-9)
	assert.Equal(t, "Average", ch.Algorithm)
	assert.Equal(t, []float64{0.5, 1.5}, ch.RawSamples)
}

func TestExtract_LongTraceUsesTraceDuration(t *testing.T) {
	t.Parallel()

	doc := parseDoc(t, "[2 - LongTrace Data]\n"+
		"Channel Number=4\n"+
		"Trace Duration(ms)=2000\n"+
		"LongTrace Data(µV)<96>=1,1,1\n")

	channels := Extract(doc)
	require.Len(t, channels, 1)
	assert.Equal(t, KindLongTrace, channels[0].Kind)
	assert.InDelta(t, 2000.0, channels[0].DurationMs, 1e-9)
	assert.Equal(t, []float64{1, 1, 1}, channels[0].RawSamples)
}

func TestExtract_ChannelNumberInheritedFromPreviousSection(t *testing.T) {
	t.Parallel()

	doc := parseDoc(t, "[1.1 - Trace Data]\n"+
		"Channel Number=5\n"+
		"Averaged Data(µV)<1920>=1\n"+
		"[1.2 - Trace Data]\n"+
		"Averaged Data(µV)<1920>=2\n")

	channels := Extract(doc)
	require.Len(t, channels, 2)
	assert.Equal(t, 5, channels[0].ChannelNumber)
	assert.Equal(t, 5, channels[1].ChannelNumber, "section without a number inherits the last seen one")
}

func TestExtract_DocumentOrderPreserved(t *testing.T) {
	t.Parallel()

	doc := parseDoc(t, "[1 - Store Data]\n"+
		"Channel Number=1\n"+
		"Averaged Data(µV)<1920>=1\n"+
		"[2.1 - Trace Data]\n"+
		"Channel Number=2\n"+
		"Averaged Data(µV)<1920>=2\n")

	channels := Extract(doc)
	require.Len(t, channels, 2)
	assert.Equal(t, KindAverage, channels[0].Kind)
	assert.Equal(t, KindTrace, channels[1].Kind)
}

func TestExtract_MissingDataKeyYieldsEmptySamples(t *testing.T) {
	t.Parallel()

	doc := parseDoc(t, "[1 - Trace Data]\nChannel Number=7\n")

	channels := Extract(doc)
	require.Len(t, channels, 1)
	assert.Equal(t, 7, channels[0].ChannelNumber)
	assert.Empty(t, channels[0].RawSamples)
}

func TestExtract_EmptyDocument(t *testing.T) {
	t.Parallel()

	assert.Empty(t, Extract(nil))
	assert.Empty(t, Extract(parseDoc(t, "; nothing\n")))
}

func TestResolveDataKey_UnitAnnotatedKeyWinsOverGeneric(t *testing.T) {
	t.Parallel()

	section := vikingfile.NewSection()
	section.Set("Averaged Data", vikingfile.NewLeaf("9,9"))
	section.Set("Averaged Data(µV)<1920>", vikingfile.NewLeaf("1,2"))

	key, ok := resolveDataKey(section, "Averaged Data")
	require.True(t, ok)
	assert.Equal(t, "Averaged Data(µV)<1920>", key)
}

func TestResolveDataKey_SubstringFallback(t *testing.T) {
	t.Parallel()

	section := vikingfile.NewSection()
	section.Set("Raw averaged data block", vikingfile.NewLeaf("1"))

	key, ok := resolveDataKey(section, "Averaged Data")
	require.True(t, ok)
	assert.Equal(t, "Raw averaged data block", key)
}

func TestScaleForKey(t *testing.T) {
	t.Parallel()

	t.Run("microvolt key needs no scaling", func(t *testing.T) {
		t.Parallel()
		assert.InDelta(t, 1.0, scaleForKey("Averaged Data(µV)<1920>", nil, nil), 1e-9)
		assert.InDelta(t, 1.0, scaleForKey("Averaged Data(uV)", nil, nil), 1e-9)
	})

	t.Run("millivolt key scales to microvolts", func(t *testing.T) {
		t.Parallel()
		assert.InDelta(t, 1000.0, scaleForKey("Averaged Data(mV)<1920>", nil, nil), 1e-9)
	})

	t.Run("adc unit in section", func(t *testing.T) {
		t.Parallel()
		section := vikingfile.NewSection()
		section.Set("ADC unit", vikingfile.NewLeaf("0,5"))
		assert.InDelta(t, 0.5, scaleForKey("Averaged Data", section, nil), 1e-9)
	})

	t.Run("millivolt adc unit in parent", func(t *testing.T) {
		t.Parallel()
		parent := vikingfile.NewSection()
		parent.Set("ADC unit(mV)", vikingfile.NewLeaf("0.5"))
		section := vikingfile.NewSection()
		assert.InDelta(t, 500.0, scaleForKey("Averaged Data", section, parent), 1e-9)
	})

	t.Run("no unit information defaults to identity", func(t *testing.T) {
		t.Parallel()
		assert.InDelta(t, 1.0, scaleForKey("Averaged Data", vikingfile.NewSection(), nil), 1e-9)
	})
}

func TestExtract_MillivoltDataScaledToMicrovolts(t *testing.T) {
	t.Parallel()

	doc := parseDoc(t, "[1 - Store Data]\n"+
		"Channel Number=1\n"+
		"Averaged Data(mV)<1920>=0.001,0.002\n")

	channels := Extract(doc)
	require.Len(t, channels, 1)
	assert.Equal(t, []float64{1, 2}, channels[0].RawSamples)
}
