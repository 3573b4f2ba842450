package recon

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/petroledger/petroledger/internal/shared"
)

// ContentHash computes a stable SHA-256 digest over the allocation values
// and shrinkage factor for tamper detection. Allocations must already be in
// partner order; two identical runs hash identically.
func ContentHash(receiptID string, period shared.Period, shrink ShrinkageResult, allocations []Allocation) string {
	var b strings.Builder
	b.WriteString(receiptID)
	b.WriteByte('\n')
	b.WriteString(period.String())
	b.WriteByte('\n')
	b.WriteString(strconv.FormatFloat(shrink.Factor, 'f', -1, 64))
	b.WriteByte('\n')
	for _, a := range allocations {
		fmt.Fprintf(&b, "%s|%s|%s|%s\n",
			a.Partner,
			strconv.FormatFloat(a.NetVolume, 'f', -1, 64),
			strconv.FormatFloat(a.Ratio, 'f', -1, 64),
			a.Volume.String())
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
