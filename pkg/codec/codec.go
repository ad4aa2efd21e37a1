// Package codec implements Merlin's canonical encoding: deterministic JSON
// serialization, EIP-191 personal-sign/recover, and the Merkle root used to
// seal an epoch's proof set.
//
// Hashing and signing are built on go-ethereum's crypto package rather than
// a hand-rolled secp256k1/Keccak implementation, so signatures verify
// against the same curve and message framing any Ethereum tool expects.
package codec

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// emptyMerkleRoot is the convention for a proof set with zero leaves: 32
// zero bytes, not keccak256 of an empty input.
var emptyMerkleRoot = "0x" + hex.EncodeToString(make([]byte, 32))

// CanonicalJSON serializes v with recursively sorted object keys and no
// insignificant whitespace, so the same logical document always produces
// the same bytes regardless of field order or marshaling history.
func CanonicalJSON(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling value: %w", err)
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("decoding for canonicalization: %w", err)
	}
	canon := canonicalizeValue(generic)
	out, err := json.Marshal(canon)
	if err != nil {
		return nil, fmt.Errorf("marshaling canonical value: %w", err)
	}
	return out, nil
}

func canonicalizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		ordered := make(orderedMap, 0, len(keys))
		for _, k := range keys {
			ordered = append(ordered, kv{k, canonicalizeValue(val[k])})
		}
		return ordered
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = canonicalizeValue(item)
		}
		return out
	default:
		return val
	}
}

// kv and orderedMap implement json.Marshaler to emit object keys in the
// exact order they were sorted into, since encoding/json re-sorts
// map[string]interface{} keys alphabetically anyway but gives us no
// control over nested map types otherwise produced by canonicalizeValue.
type kv struct {
	Key   string
	Value interface{}
}

type orderedMap []kv

func (o orderedMap) MarshalJSON() ([]byte, error) {
	var b strings.Builder
	b.WriteByte('{')
	for i, pair := range o {
		if i > 0 {
			b.WriteByte(',')
		}
		keyJSON, err := json.Marshal(pair.Key)
		if err != nil {
			return nil, err
		}
		b.Write(keyJSON)
		b.WriteByte(':')
		valJSON, err := json.Marshal(pair.Value)
		if err != nil {
			return nil, err
		}
		b.Write(valJSON)
	}
	b.WriteByte('}')
	return []byte(b.String()), nil
}

// Keccak256 hashes data with the Ethereum variant of SHA-3.
func Keccak256(data ...[]byte) []byte {
	return crypto.Keccak256(data...)
}

// HashCanonical canonicalizes v and returns its Keccak-256 digest.
func HashCanonical(v interface{}) ([]byte, error) {
	data, err := CanonicalJSON(v)
	if err != nil {
		return nil, err
	}
	return Keccak256(data), nil
}

// personalSignDigest applies EIP-191's "personal_sign" message prefix before
// hashing, so a signature can't be replayed as a raw transaction.
func personalSignDigest(message []byte) []byte {
	hash := Keccak256(message)
	prefix := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(hash))
	return Keccak256([]byte(prefix), hash)
}

// Sign signs message under EIP-191 personal-sign semantics using the given
// hex-encoded (optionally 0x-prefixed) secp256k1 private key. The returned
// signature is 65 bytes (r, s, v) hex-encoded with a 0x prefix, v in {27,28}.
func Sign(privateKeyHex string, message []byte) (string, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return "", fmt.Errorf("parsing private key: %w", err)
	}
	digest := personalSignDigest(message)
	sig, err := crypto.Sign(digest, key)
	if err != nil {
		return "", fmt.Errorf("signing digest: %w", err)
	}
	// go-ethereum returns v in {0,1}; EIP-191 wire format expects {27,28}.
	sig[64] += 27
	return "0x" + hex.EncodeToString(sig), nil
}

// RecoverAddress recovers the signer address from a personal-sign
// signature over message.
func RecoverAddress(message []byte, sigHex string) (string, error) {
	sig, err := decodeSignature(sigHex)
	if err != nil {
		return "", err
	}
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	digest := personalSignDigest(message)
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return "", fmt.Errorf("recovering public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub).Hex(), nil
}

// Verify reports whether sigHex is a valid personal-sign signature over
// message by address.
func Verify(address string, message []byte, sigHex string) (bool, error) {
	recovered, err := RecoverAddress(message, sigHex)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(recovered, address), nil
}

// AddressFromPrivateKey derives the checksummed address for a hex-encoded
// secp256k1 private key.
func AddressFromPrivateKey(privateKeyHex string) (string, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return "", fmt.Errorf("parsing private key: %w", err)
	}
	return crypto.PubkeyToAddress(key.PublicKey).Hex(), nil
}

func decodeSignature(sigHex string) ([]byte, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("decoding signature: %w", err)
	}
	if len(sig) != 65 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSignatureLength, len(sig))
	}
	return sig, nil
}

// MerkleRoot computes the canonical Merkle root over a set of leaf
// identifiers:
//
//  1. Leaves are sorted ascending by raw string value.
//  2. Each leaf is encoded: a 0x-prefixed string is hex-decoded as-is;
//     any other string is hashed with Keccak-256 over its UTF-8 bytes.
//  3. Pairs are combined bottom-up as Keccak256(left || right); an odd
//     node at any level is paired with itself (duplicated, not promoted).
//
// An empty leaf set returns the all-zero root. A single leaf returns
// Keccak256(leaf || leaf).
func MerkleRoot(leafIDs []string) (string, error) {
	if len(leafIDs) == 0 {
		return emptyMerkleRoot, nil
	}

	sorted := append([]string(nil), leafIDs...)
	sort.Strings(sorted)

	level := make([][]byte, len(sorted))
	for i, id := range sorted {
		enc, err := encodeLeaf(id)
		if err != nil {
			return "", fmt.Errorf("encoding leaf %q: %w", id, err)
		}
		level[i] = enc
	}

	// At least one round always runs, so a single leaf is paired with itself.
	for first := true; first || len(level) > 1; first = false {
		next := make([][]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			right := left
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, Keccak256(left, right))
		}
		level = next
	}

	return "0x" + hex.EncodeToString(level[0]), nil
}

func encodeLeaf(id string) ([]byte, error) {
	if strings.HasPrefix(id, "0x") || strings.HasPrefix(id, "0X") {
		b, err := hex.DecodeString(id[2:])
		if err != nil {
			return nil, fmt.Errorf("invalid hex leaf: %w", err)
		}
		return b, nil
	}
	return Keccak256([]byte(id)), nil
}

// SignDocument signs doc under EIP-191, after removing any existing "sig"
// field, so a signature never covers itself. It returns the signature to
// store back into the document.
func SignDocument(privateKeyHex string, doc map[string]interface{}) (string, error) {
	canonical, err := canonicalWithoutSig(doc)
	if err != nil {
		return "", err
	}
	return Sign(privateKeyHex, canonical)
}

// VerifyDocument checks doc's "sig" field against address, over the
// canonical form of doc with "sig" removed.
func VerifyDocument(address string, doc map[string]interface{}) (bool, error) {
	sig, _ := doc["sig"].(string)
	if sig == "" {
		return false, ErrMissingSignature
	}
	canonical, err := canonicalWithoutSig(doc)
	if err != nil {
		return false, err
	}
	return Verify(address, canonical, sig)
}

func canonicalWithoutSig(doc map[string]interface{}) ([]byte, error) {
	stripped := make(map[string]interface{}, len(doc))
	for k, v := range doc {
		if k == "sig" {
			continue
		}
		stripped[k] = v
	}
	return CanonicalJSON(stripped)
}

// IsValidCID reports whether s looks like a CIDv0 ("Qm...") or CIDv1
// ("bafy...") content identifier.
func IsValidCID(s string) bool {
	if strings.HasPrefix(s, "Qm") && len(s) > 2 {
		return isAlnum(s[2:])
	}
	if strings.HasPrefix(s, "bafy") && len(s) > 4 {
		return isAlnum(s[4:])
	}
	return false
}

func isAlnum(s string) bool {
	for _, r := range s {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return len(s) > 0
}
