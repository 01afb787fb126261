package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	// SimulatedPrefix marks text produced without the model.
	SimulatedPrefix = "[SIMULATED]"
	// SimulatedHashPrefix marks biometric hashes derived locally because no key is configured.
	SimulatedHashPrefix = "SIM-"
	// OfflineHashPrefix marks biometric hashes derived locally because the model call failed.
	OfflineHashPrefix = "OFFLINE-"
	// ModelHashPrefix marks hashes accepted from the model.
	ModelHashPrefix = "BIO-"
)

// Risk levels returned by RiskLevel.
const (
	RiskLow    = "LOW"
	RiskMedium = "MEDIUM"
	RiskHigh   = "HIGH"
)

// Validation is the outcome of a biometric check. Hash is empty when the
// photo was rejected.
type Validation struct {
	Valid   bool   `json:"valid"`
	Hash    string `json:"hash,omitempty"`
	Offline bool   `json:"offline"`
	Reason  string `json:"reason,omitempty"`
}

// Describe returns a short registry description of the animal in image.
func (c *Client) Describe(ctx context.Context, image []byte, species string) string {
	species = strings.TrimSpace(species)
	if species == "" {
		species = "animal"
	}
	prompt := fmt.Sprintf("You are assisting a livestock registry. Describe this %s in at most two sentences: "+
		"breed if recognisable, coat colour and any distinctive markings useful for identification.", species)
	parts := []part{textPart(prompt)}
	if len(image) > 0 {
		parts = append(parts, imagePart(image))
	}
	text, err := c.generate(ctx, false, parts...)
	if err != nil {
		c.logFallback("describe", err)
		return fmt.Sprintf("%s %s with no automated description available.", SimulatedPrefix, capitalize(species))
	}
	return text
}

type validationReply struct {
	Valid  bool   `json:"valid"`
	Hash   string `json:"hash"`
	Reason string `json:"reason"`
}

// Validate checks that image shows a single identifiable animal and returns
// its biometric hash. Without a key the photo is accepted with a SIM- hash;
// a failed call accepts it with an OFFLINE- hash. Both derive from the bytes,
// so re-uploading the same photo yields the same hash.
func (c *Client) Validate(ctx context.Context, image []byte) Validation {
	if !c.Enabled() {
		return Validation{Valid: true, Hash: SimulatedHashPrefix + fingerprint(image)}
	}
	prompt := "You are a livestock biometric validator. Decide whether this photo clearly shows one real " +
		"animal with identifiable features (muzzle, face or coat pattern). Reply with JSON " +
		`{"valid": boolean, "hash": string, "reason": string} where hash is a short stable identifier ` +
		"of the visible features, empty when invalid."
	text, err := c.generate(ctx, true, textPart(prompt), imagePart(image))
	if err == nil {
		var reply validationReply
		if err = json.Unmarshal([]byte(stripFence(text)), &reply); err == nil {
			return c.validationFromReply(reply, image)
		}
		err = fmt.Errorf("decode validation: %w", err)
	}
	c.logFallback("validate", err)
	return Validation{Valid: true, Hash: OfflineHashPrefix + fingerprint(image), Offline: true}
}

func (c *Client) validationFromReply(reply validationReply, image []byte) Validation {
	if !reply.Valid {
		return Validation{Valid: false, Reason: reply.Reason}
	}
	hash := strings.TrimSpace(reply.Hash)
	if hash == "" {
		hash = fingerprint(image)
	}
	if !strings.HasPrefix(hash, ModelHashPrefix) {
		hash = ModelHashPrefix + hash
	}
	return Validation{Valid: true, Hash: hash, Reason: reply.Reason}
}

// AssessRisk returns a short theft-risk assessment for location given the
// number of recent theft reports there.
func (c *Client) AssessRisk(ctx context.Context, theftCount int, location string) string {
	prompt := fmt.Sprintf("You are a rural security analyst. %d livestock theft reports are open in %s. "+
		"Give a one-paragraph risk assessment starting with LOW, MEDIUM or HIGH and one practical precaution.",
		theftCount, location)
	text, err := c.generate(ctx, false, textPart(prompt))
	if err != nil {
		c.logFallback("assess_risk", err)
		return fallbackRisk(theftCount, location)
	}
	return text
}

// RiskLevel maps a theft count onto LOW (0), MEDIUM (1-3) or HIGH (more than 3).
func RiskLevel(theftCount int) string {
	switch {
	case theftCount <= 0:
		return RiskLow
	case theftCount <= 3:
		return RiskMedium
	default:
		return RiskHigh
	}
}

func fallbackRisk(theftCount int, location string) string {
	level := RiskLevel(theftCount)
	var advice string
	switch level {
	case RiskLow:
		advice = "No open theft reports. Keep routine checks."
	case RiskMedium:
		advice = "Keep animals enclosed at night and verify buyers' registration numbers."
	default:
		advice = "Coordinate with local authorities and avoid moving animals without transfer records."
	}
	return fmt.Sprintf("%s %s risk in %s: %d open theft report(s). %s", SimulatedPrefix, level, location, theftCount, advice)
}

func (c *Client) logFallback(call string, err error) {
	if errors.Is(err, ErrNotConfigured) {
		c.logger.Debug("model not configured, using fallback", "call", call)
		return
	}
	c.logger.Warn("model call failed, using fallback", "call", call, "error", err)
}

func fingerprint(image []byte) string {
	sum := sha256.Sum256(image)
	return strings.ToUpper(hex.EncodeToString(sum[:8]))
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
