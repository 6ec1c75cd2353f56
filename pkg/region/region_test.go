package region

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vertaai/driftgate/pkg/fault"
)

const doc = "# Runbook\n\nintro\n\n" + StartMarker + "\nmanaged body\n" + EndMarker + "\n\nfooter\n"

func TestHas(t *testing.T) {
	require.True(t, Has(doc))
	require.False(t, Has("no markers here"))
	require.False(t, Has("# Doc\n"+StartMarker+"\nunterminated"))
	// End before start does not count as a region.
	require.False(t, Has(EndMarker+"\n"+StartMarker))
}

func TestExtract(t *testing.T) {
	body, err := Extract(doc)
	require.NoError(t, err)
	require.Equal(t, "\nmanaged body\n", body)

	_, err = Extract("plain doc")
	require.Equal(t, fault.KindNotFound, fault.KindOf(err))

	_, err = Extract(StartMarker + " dangling")
	require.Equal(t, fault.KindValidation, fault.KindOf(err))
}

func TestSplicePreservesOutside(t *testing.T) {
	out, err := Splice(doc, "\nnew body\n")
	require.NoError(t, err)
	require.Contains(t, out, "# Runbook")
	require.Contains(t, out, "footer")
	require.Contains(t, out, "\nnew body\n")
	require.NotContains(t, out, "managed body")

	body, err := Extract(out)
	require.NoError(t, err)
	require.Equal(t, "\nnew body\n", body)

	changed, err := OutsideChanged(doc, out)
	require.NoError(t, err)
	require.False(t, changed)
}

func TestOutsideChanged(t *testing.T) {
	tampered, err := Splice(doc, "\nnew body\n")
	require.NoError(t, err)
	tampered = "EDITED " + tampered

	changed, err := OutsideChanged(doc, tampered)
	require.NoError(t, err)
	require.True(t, changed)

	// Broken markers in the patched doc count as an outside change.
	changed, err = OutsideChanged(doc, "markers gone")
	require.NoError(t, err)
	require.True(t, changed)
}
