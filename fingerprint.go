package intention

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// Fingerprint is the deterministic identity of a logical request. It is the
// sole cache and single-flight key. The readable provider:template@version
// prefix exists so bulk invalidation can select by provider or template
// version without an index.
type Fingerprint string

func (f Fingerprint) String() string { return string(f) }

// ProviderPrefix selects every fingerprint minted for a provider.
func ProviderPrefix(providerID string) string {
	return providerID + ":"
}

// TemplatePrefix selects every fingerprint minted for one template version
// under a provider.
func TemplatePrefix(providerID, template, version string) string {
	return fmt.Sprintf("%s:%s@%s:", providerID, template, version)
}

// NewFingerprint derives the identity of a logical request from the provider,
// the template that produced the payload, the normalized payload and the model
// parameters. Equal logical requests yield equal fingerprints: the payload is
// canonicalized (recursive key ordering, compact whitespace) so semantically
// identical requests from different call sites collide. Non-JSON payloads are
// rejected as non-normalizable.
func NewFingerprint(providerID, template, version string, payload Payload, params ModelParams) (Fingerprint, error) {
	canonical, err := canonicalizeJSON([]byte(payload))
	if err != nil {
		return "", &Error{
			Type:    ErrorTypeTemplate,
			Message: "payload is not normalizable",
			Cause:   err,
		}
	}

	// ModelParams marshals deterministically: struct fields keep declaration
	// order and Go sorts map keys during encoding.
	paramBytes, err := json.Marshal(params)
	if err != nil {
		return "", &Error{
			Type:    ErrorTypeTemplate,
			Message: "model params are not normalizable",
			Cause:   err,
		}
	}

	h := sha256.New()
	h.Write([]byte(providerID))
	h.Write([]byte{0})
	h.Write(canonical)
	h.Write([]byte{0})
	h.Write(paramBytes)

	return Fingerprint(fmt.Sprintf("%s%x", TemplatePrefix(providerID, template, version), h.Sum(nil))), nil
}

// canonicalizeJSON re-encodes a JSON document in canonical form. Decoding into
// interface{} and re-marshaling sorts object keys recursively and strips
// insignificant whitespace.
func canonicalizeJSON(raw []byte) ([]byte, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}
