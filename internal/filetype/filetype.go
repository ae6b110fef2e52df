// Package filetype classifies file content by magic-number signatures.
//
// It is the anti-spoofing backbone of the upload confirmation step: the
// declared MIME type is only trusted when the leading bytes the client
// actually stored carry a matching, recognized signature.
package filetype

import (
	"bytes"
	"fmt"
)

// PrefixLength is the number of leading bytes a caller should supply to
// Detect. Every signature in the table fits within this range.
const PrefixLength = 16

// signature is one (offset, prefix, mime) entry. A format matches when every
// listed part is found at its offset; WebP needs two parts (the RIFF container
// tag at 0 and the WEBP format tag at 8).
type signature struct {
	mime  string
	parts []signaturePart
}

type signaturePart struct {
	offset int
	prefix []byte
}

var signatures = []signature{
	{mime: "application/pdf", parts: []signaturePart{{0, []byte("%PDF")}}},
	{mime: "image/jpeg", parts: []signaturePart{{0, []byte{0xFF, 0xD8, 0xFF}}}},
	{mime: "image/png", parts: []signaturePart{{0, []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}}}},
	{mime: "image/gif", parts: []signaturePart{{0, []byte("GIF87a")}}},
	{mime: "image/gif", parts: []signaturePart{{0, []byte("GIF89a")}}},
	{mime: "image/webp", parts: []signaturePart{{0, []byte("RIFF")}, {8, []byte("WEBP")}}},
}

// mimeAliases maps accepted alternate spellings onto the canonical type.
var mimeAliases = map[string]string{
	"image/jpg": "image/jpeg",
}

// Result is the outcome of a detection run. Valid is true only when a
// signature was recognized and it matches the declared type. DetectedType is
// empty when no signature matched.
type Result struct {
	Valid        bool
	DetectedType string
	Err          error
}

// Detect matches prefix against the signature table and compares the outcome
// with declaredType (after alias normalization).
func Detect(prefix []byte, declaredType string) Result {
	detected := DetectType(prefix)
	if detected == "" {
		return Result{Err: fmt.Errorf("unrecognized file signature (declared %q)", declaredType)}
	}
	if detected != Normalize(declaredType) {
		return Result{
			DetectedType: detected,
			Err:          fmt.Errorf("content type mismatch: declared %q but detected %q", declaredType, detected),
		}
	}
	return Result{Valid: true, DetectedType: detected}
}

// DetectType returns the MIME type whose signature matches prefix, or ""
// when no known signature matches.
func DetectType(prefix []byte) string {
	for _, sig := range signatures {
		if matches(prefix, sig) {
			return sig.mime
		}
	}
	return ""
}

// Normalize maps accepted MIME aliases (image/jpg) onto the canonical type.
func Normalize(mimeType string) string {
	if canonical, ok := mimeAliases[mimeType]; ok {
		return canonical
	}
	return mimeType
}

func matches(prefix []byte, sig signature) bool {
	for _, part := range sig.parts {
		end := part.offset + len(part.prefix)
		if len(prefix) < end || !bytes.Equal(prefix[part.offset:end], part.prefix) {
			return false
		}
	}
	return true
}
