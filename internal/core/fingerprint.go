package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"net/mail"
	"strings"

	"github.com/mikey/giveaway-engine/internal/utils"
)

// shingleSize is the number of consecutive tokens hashed together
const shingleSize = 3

// ComputeFingerprint derives the dedup key of a candidate from its
// normalised sender, normalised subject and a SimHash of the body
func ComputeFingerprint(c Candidate) Fingerprint {
	h := sha256.New()
	h.Write([]byte(NormalizeSender(c.Sender)))
	h.Write([]byte{0})
	h.Write([]byte(utils.NormalizeSubject(c.Subject)))
	h.Write([]byte{0})
	fmt.Fprintf(h, "%016x", SimHash(c.Body))
	return Fingerprint(hex.EncodeToString(h.Sum(nil)))
}

// NormalizeSender reduces a From header to a lower-cased address with any
// +tag removed from the local part
func NormalizeSender(sender string) string {
	addr := strings.TrimSpace(sender)
	if parsed, err := mail.ParseAddress(addr); err == nil {
		addr = parsed.Address
	}
	addr = strings.ToLower(addr)

	local, domain, ok := strings.Cut(addr, "@")
	if !ok {
		return addr
	}
	if i := strings.IndexByte(local, '+'); i > 0 {
		local = local[:i]
	}
	return local + "@" + domain
}

// SenderDomain returns the domain part of the normalised sender
func SenderDomain(sender string) string {
	_, domain, ok := strings.Cut(NormalizeSender(sender), "@")
	if !ok {
		return ""
	}
	return domain
}

// SimHash computes a 64-bit SimHash over word shingles of the body.
// Bodies that differ only in digits, link query strings, case or
// whitespace hash identically.
func SimHash(body string) uint64 {
	tokens := utils.ContentTokens(body)
	if len(tokens) == 0 {
		return 0
	}

	var weights [64]int
	add := func(shingle string) {
		f := fnv.New64a()
		f.Write([]byte(shingle))
		sum := f.Sum64()
		for i := 0; i < 64; i++ {
			if sum&(1<<uint(i)) != 0 {
				weights[i]++
			} else {
				weights[i]--
			}
		}
	}

	if len(tokens) < shingleSize {
		add(strings.Join(tokens, " "))
	} else {
		for i := 0; i+shingleSize <= len(tokens); i++ {
			add(strings.Join(tokens[i:i+shingleSize], " "))
		}
	}

	var out uint64
	for i, w := range weights {
		if w > 0 {
			out |= 1 << uint(i)
		}
	}
	return out
}

// HammingDistance counts differing bits between two SimHashes
func HammingDistance(a, b uint64) int {
	x := a ^ b
	n := 0
	for x != 0 {
		x &= x - 1
		n++
	}
	return n
}
