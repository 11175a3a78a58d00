package shop

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"unicode"

	"github.com/medleyhq/medley/models"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"
)

var (
	slugStrip = regexp.MustCompile(`[^\w\s-]`)
	slugDash  = regexp.MustCompile(`[-\s]+`)
)

// Slugify lowercases s, drops accents and punctuation and joins words
// with hyphens.
func Slugify(s string) string {
	var b strings.Builder
	for _, r := range norm.NFKD.String(s) {
		if r <= unicode.MaxASCII {
			b.WriteRune(r)
		}
	}
	out := slugStrip.ReplaceAllString(strings.ToLower(b.String()), "")
	out = slugDash.ReplaceAllString(strings.TrimSpace(out), "-")
	return strings.Trim(out, "-_")
}

// uniqueSlug returns the slug of title, suffixed -1, -2... until no other
// item uses it.
func uniqueSlug(tx *gorm.DB, title string) (string, error) {
	base := Slugify(title)
	if base == "" {
		base = "item"
	}
	slug := base
	for n := 1; ; n++ {
		var count int64
		if err := tx.Unscoped().Model(&models.Item{}).Where("slug = ?", slug).Count(&count).Error; err != nil {
			return "", fmt.Errorf("failed to check slug: %w", err)
		}
		if count == 0 {
			return slug, nil
		}
		slug = fmt.Sprintf("%s-%d", base, n)
	}
}

const refCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// RefCodeLength is the length of an order reference code.
const RefCodeLength = 20

// NewRefCode returns a random order reference code of uppercase letters
// and digits.
func NewRefCode() string {
	b := make([]byte, RefCodeLength)
	limit := big.NewInt(int64(len(refCodeAlphabet)))
	for i := range b {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			panic(fmt.Sprintf("crypto/rand failed: %v", err))
		}
		b[i] = refCodeAlphabet[n.Int64()]
	}
	return string(b)
}
