package usecases

import (
	"strings"

	"showroom_bot/internal/entities"
)

const (
	RulePhotoClaim    = "photo_claim"
	RuleReferenceCode = "reference_code"
)

// IntegrityChecker rejects replies that assert side effects or data the loop did not produce.
type IntegrityChecker struct {
	patterns *Patterns
}

func NewIntegrityChecker(p *Patterns) *IntegrityChecker {
	return &IntegrityChecker{patterns: p}
}

// RequestsPhotos reports whether the customer asked to see photos.
func (c *IntegrityChecker) RequestsPhotos(text string) bool {
	lower := strings.ToLower(text)
	for _, re := range c.patterns.photoRequests {
		if re.MatchString(lower) {
			return true
		}
	}
	return false
}

// PhotoClaim returns the first phrase in answer saying a photo was or will be sent.
func (c *IntegrityChecker) PhotoClaim(answer string) (string, bool) {
	lower := strings.ToLower(answer)
	for _, re := range c.patterns.photoClaims {
		if m := re.FindString(lower); m != "" {
			return m, true
		}
	}
	return "", false
}

// UnknownCodes lists reference codes in answer that appear in none of the
// tool outputs. Model names shaped like codes are skipped.
func (c *IntegrityChecker) UnknownCodes(answer string, toolOutputs []string) []string {
	seen := strings.ToUpper(strings.Join(toolOutputs, "\n"))
	var unknown []string
	for _, code := range c.patterns.referenceCode.FindAllString(answer, -1) {
		if c.patterns.IsModelName(code) {
			continue
		}
		if !strings.Contains(seen, code) && !strings.Contains(seen, strings.ReplaceAll(code, "-", "")) {
			unknown = append(unknown, code)
		}
	}
	return unknown
}

// Check validates a final answer. It returns nil when the answer may be delivered.
func (c *IntegrityChecker) Check(customerText, answer string, photoToolInvoked bool, toolOutputs []string) *entities.IntegrityViolation {
	if !photoToolInvoked && c.RequestsPhotos(customerText) {
		if excerpt, ok := c.PhotoClaim(answer); ok {
			return &entities.IntegrityViolation{Rule: RulePhotoClaim, Excerpt: excerpt}
		}
	}
	if codes := c.UnknownCodes(answer, toolOutputs); len(codes) > 0 {
		return &entities.IntegrityViolation{Rule: RuleReferenceCode, Excerpt: strings.Join(codes, ", ")}
	}
	return nil
}

// CorrectiveInstruction is the system message appended before the forced retry.
func CorrectiveInstruction(v *entities.IntegrityViolation) string {
	switch v.Rule {
	case RulePhotoClaim:
		return "KOREKSI: jawabanmu menyatakan foto sudah/akan dikirim (\"" + v.Excerpt + "\"), padahal tool " +
			ToolSendPhotos + " belum dipanggil. Panggil " + ToolSendPhotos + " sekarang untuk unit yang dimaksud. " +
			"Jika unit belum jelas, cari dulu dengan " + ToolSearchInventory + ". Jangan menyebut pengiriman foto tanpa memanggil tool."
	default:
		return "KOREKSI: jawabanmu menyebut kode unit (" + v.Excerpt + ") yang tidak berasal dari hasil tool. " +
			"Gunakan " + ToolSearchInventory + " atau " + ToolCarDetail + " dan hanya sebut kode yang dikembalikan tool."
	}
}
