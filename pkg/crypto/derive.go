package crypto

// DeriveMK computes the master key MK = EnHash(IUK).
func DeriveMK(iuk []byte) [KeySize]byte {
	return EnHash(iuk)
}

// DeriveLocal computes the local-envelope key LOCAL = EnHash(MK).
func DeriveLocal(mk []byte) [KeySize]byte {
	return EnHash(mk)
}

// DeriveILK computes the identity-lock public key ILK = X25519_base(clamp(IUK)).
func DeriveILK(iuk []byte) ([]byte, error) {
	scalar := append([]byte(nil), iuk...)
	if err := ClampScalar(scalar); err != nil {
		return nil, err
	}
	return X25519Base(scalar)
}

// DeriveSUK computes the server unlock key SUK = X25519_base(RLK).
func DeriveSUK(rlk []byte) ([]byte, error) {
	return X25519Base(rlk)
}

// DeriveVUK computes the verify unlock key
// VUK = Ed25519_pub(X25519(ILK, RLK)).
func DeriveVUK(ilk, rlk []byte) ([]byte, error) {
	shared, err := X25519(rlk, ilk)
	if err != nil {
		return nil, err
	}
	return Ed25519PublicFromSeed(shared)
}

// DeriveURSK computes the unlock-request signing key
// URSK = X25519(SUK, clamp(IUK)). By construction its Ed25519 public key
// equals VUK.
func DeriveURSK(suk, iuk []byte) ([]byte, error) {
	scalar := append([]byte(nil), iuk...)
	if err := ClampScalar(scalar); err != nil {
		return nil, err
	}
	return X25519(scalar, suk)
}

// DeriveSiteSecret computes the per-site secret SEC = HMAC-SHA256(key=MK,
// msg=hostString).
func DeriveSiteSecret(mk []byte, hostString string) [KeySize]byte {
	return HMACSHA256(mk, []byte(hostString))
}

// DeriveSitePublic derives the per-site Ed25519 public key PUB from the site
// secret SEC.
func DeriveSitePublic(sec []byte) ([]byte, error) {
	return Ed25519PublicFromSeed(sec)
}
