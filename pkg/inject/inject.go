// Package inject embeds a fripack payload into a prebuilt ELF shared object.
//
// A compatible binary carries a fixed-layout sentinel structure somewhere in its
// bytes. Patch appends a new section holding the (optionally xz-compressed)
// payload record and rewrites the sentinel so the runtime can locate it relative
// to the sentinel's own file offset.
package inject

// Sentinel and section constants are shared with the binary producer and must never change.
const (
	// TagA and TagB are the two adjacent markers that identify the sentinel.
	TagA int32 = 0x0d000721
	TagB int32 = 0x1f8a4e2b

	// SentinelVersion is the schema version written by compatible producers.
	SentinelVersion int32 = 1

	// SentinelSize is the encoded size of the sentinel: five int32 fields and one flag byte.
	SentinelSize = 21

	// SectionName names the section that carries the payload.
	SectionName = ".fripack_config"
)

// elfMagic is the identity prefix of every accepted container.
const elfMagic = "\x7fELF"
