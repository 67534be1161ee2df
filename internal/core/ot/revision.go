package ot

import (
	"encoding/base64"
	"encoding/binary"
)

// Revision is an opaque server-issued commit id.
type Revision string

// RootCommitID denotes the empty history of a document that the server has
// not materialized yet. It is the raw URL base64 encoding of eight zero bytes.
const RootCommitID Revision = "AAAAAAAAAAA"

// IsRoot reports whether r is the root commit.
func (r Revision) IsRoot() bool { return r == RootCommitID }

func (r Revision) String() string { return string(r) }

// RevisionFromHash encodes a 64-bit hash in the same alphabet as RootCommitID.
func RevisionFromHash(h uint64) Revision {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], h)
	return Revision(base64.RawURLEncoding.EncodeToString(buf[:]))
}
