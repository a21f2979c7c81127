package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix leaves room for changing the canonical form later.
const (
	DomainPatch = "patchwire/patch/v1"
	DomainSetup = "patchwire/setup/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator keeps domain and data from running together.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// PatchHash fingerprints a compiled patch. Two compiles of the same
// expression produce the same hash because module numbering follows the
// traversal order.
func PatchHash(p *Patch) (string, error) {
	if p == nil {
		return "", fmt.Errorf("PatchHash: nil patch")
	}
	canonical, err := MarshalCanonical(patchValue(p))
	if err != nil {
		return "", fmt.Errorf("PatchHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainPatch, canonical), nil
}

// SetupHash fingerprints a compiled setup: its config and the hashes of
// every patch it contains.
func SetupHash(s *Setup) (string, error) {
	if s == nil {
		return "", fmt.Errorf("SetupHash: nil setup")
	}

	patchHash := func(p *Patch) (any, error) {
		if p == nil {
			return "", nil
		}
		return PatchHash(p)
	}

	patches := make([]any, 0, len(s.Patches))
	for _, e := range s.Patches {
		body, err := patchHash(e.Body)
		if err != nil {
			return "", fmt.Errorf("SetupHash: patch %d: %w", e.Number, err)
		}
		init, err := patchHash(e.Init)
		if err != nil {
			return "", fmt.Errorf("SetupHash: patch %d init: %w", e.Number, err)
		}
		patches = append(patches, map[string]any{
			"number": e.Number,
			"body":   body,
			"init":   init,
		})
	}

	obj := map[string]any{
		"backend":     string(s.Config.Backend),
		"client_name": s.Config.ClientName,
		"in_ports":    s.Config.InPorts,
		"out_ports":   s.Config.OutPorts,
		"patches":     patches,
	}
	if s.Config.InPortNames != nil {
		obj["in_port_names"] = s.Config.InPortNames
	}
	if s.Config.OutPortNames != nil {
		obj["out_port_names"] = s.Config.OutPortNames
	}
	for name, p := range map[string]*Patch{"control": s.Control, "pre": s.Pre, "post": s.Post} {
		h, err := patchHash(p)
		if err != nil {
			return "", fmt.Errorf("SetupHash: %s: %w", name, err)
		}
		obj[name] = h
	}
	if s.DefaultPatch != nil {
		obj["default_patch"] = *s.DefaultPatch
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("SetupHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainSetup, canonical), nil
}

// MustPatchHash is like PatchHash but panics on error.
// Use only in tests or when the patch is known to be valid.
func MustPatchHash(p *Patch) string {
	h, err := PatchHash(p)
	if err != nil {
		panic(err)
	}
	return h
}
