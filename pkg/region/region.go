// Package region handles the delimited managed region inside a target
// document. Automated patches may only touch content between the markers;
// everything outside belongs to humans.
package region

import (
	"strings"

	"github.com/vertaai/driftgate/pkg/fault"
)

const (
	StartMarker = "<!-- driftgate:managed:start -->"
	EndMarker   = "<!-- driftgate:managed:end -->"
)

// Has reports whether doc declares a managed region.
func Has(doc string) bool {
	start := strings.Index(doc, StartMarker)
	if start < 0 {
		return false
	}
	return strings.Index(doc[start:], EndMarker) >= 0
}

// Extract returns the content between the markers, exclusive.
func Extract(doc string) (string, error) {
	start := strings.Index(doc, StartMarker)
	if start < 0 {
		return "", fault.New(fault.KindNotFound, "no managed region start marker")
	}
	inner := start + len(StartMarker)
	end := strings.Index(doc[inner:], EndMarker)
	if end < 0 {
		return "", fault.New(fault.KindValidation, "managed region start without end marker")
	}
	return doc[inner : inner+end], nil
}

// Splice replaces the region content, leaving everything outside the
// markers byte-identical.
func Splice(doc, replacement string) (string, error) {
	start := strings.Index(doc, StartMarker)
	if start < 0 {
		return "", fault.New(fault.KindNotFound, "no managed region start marker")
	}
	inner := start + len(StartMarker)
	end := strings.Index(doc[inner:], EndMarker)
	if end < 0 {
		return "", fault.New(fault.KindValidation, "managed region start without end marker")
	}
	return doc[:inner] + replacement + doc[inner+end:], nil
}

// OutsideChanged reports whether original and patched differ anywhere
// outside the managed region.
func OutsideChanged(original, patched string) (bool, error) {
	origPre, origPost, err := surround(original)
	if err != nil {
		return false, err
	}
	patchedPre, patchedPost, err := surround(patched)
	if err != nil {
		// Patch removed or broke the markers; that is an outside change.
		return true, nil
	}
	return origPre != patchedPre || origPost != patchedPost, nil
}

// surround returns the text before the region content and after it,
// markers included.
func surround(doc string) (pre, post string, err error) {
	start := strings.Index(doc, StartMarker)
	if start < 0 {
		return "", "", fault.New(fault.KindNotFound, "no managed region start marker")
	}
	inner := start + len(StartMarker)
	end := strings.Index(doc[inner:], EndMarker)
	if end < 0 {
		return "", "", fault.New(fault.KindValidation, "managed region start without end marker")
	}
	return doc[:inner], doc[inner+end:], nil
}
