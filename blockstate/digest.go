package blockstate

import "golang.org/x/crypto/blake2b"

// FeatureDigest identifies a single protocol feature by the digest of its
// description, matching the "new feature digests" carried by a protocol-
// feature-activation header extension.
type FeatureDigest [32]byte

// DigestFromBytes derives a FeatureDigest from an arbitrary feature
// descriptor (typically the feature's codename plus its dependency set,
// canonically encoded by the host).
func DigestFromBytes(descriptor []byte) FeatureDigest {
	return FeatureDigest(blake2b.Sum256(descriptor))
}

func (d FeatureDigest) String() string {
	return ID(d).String()
}
